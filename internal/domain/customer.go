package domain

import "time"

// Address is a delivery address as stored in the customer directory.
type Address struct {
	ID           int    `json:"id,omitempty"`
	Street       string `json:"street"`
	Number       string `json:"number"`
	Complement   string `json:"complement,omitempty"`
	Neighborhood string `json:"neighborhood"`
	City         string `json:"city"`
	State        string `json:"state"`
	ZipCode      string `json:"zipCode"`
	Country      string `json:"country"`
}

// Customer is a directory entry keyed by email.
type Customer struct {
	ID        int       `json:"id"`
	FirstName string    `json:"firstName,omitempty"`
	LastName  string    `json:"lastName,omitempty"`
	Email     string    `json:"email"`
	Phone     string    `json:"phone,omitempty"`
	CPF       string    `json:"cpf,omitempty"`
	ClerkID   string    `json:"clerkId,omitempty"`
	Address   *Address  `json:"address,omitempty"`
	Addresses []Address `json:"addresses,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// FullName joins first and last names.
func (c Customer) FullName() string {
	switch {
	case c.FirstName == "":
		return c.LastName
	case c.LastName == "":
		return c.FirstName
	default:
		return c.FirstName + " " + c.LastName
	}
}

// Identity is the authenticated user as reported by the identity provider.
type Identity struct {
	UserID    string `json:"userId"`
	FirstName string `json:"firstName,omitempty"`
	LastName  string `json:"lastName,omitempty"`
	Email     string `json:"email,omitempty"`
	Phone     string `json:"phone,omitempty"`
	ImageURL  string `json:"imageUrl,omitempty"`
}

// DisplayName is the name shown in chat.
func (i Identity) DisplayName() string {
	c := Customer{FirstName: i.FirstName, LastName: i.LastName}
	if name := c.FullName(); name != "" {
		return name
	}
	return i.Email
}

// Identity provider event types mirrored into the customer directory.
const (
	IdentityUserCreated = "user.created"
	IdentityUserUpdated = "user.updated"
	IdentityUserDeleted = "user.deleted"
)

// IdentityEvent is a verified webhook notification about a user.
type IdentityEvent struct {
	Type string
	User Identity
}
