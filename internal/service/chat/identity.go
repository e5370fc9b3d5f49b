package chat

import (
	"strings"

	"ourofino-storefront/internal/domain"
)

const (
	anonymousPrefix = "Anônimo_"
	anonymousAvatar = "./anonymous.png"
)

// ResolveViewer picks the identity a customer chats as: the signed-in user,
// or the anonymous visitor id when sign-in is not required.
func ResolveViewer(user *domain.Identity, anonymousID string, loginRequired bool) (domain.Participant, error) {
	if user != nil && user.UserID != "" {
		return domain.Participant{ID: user.UserID, Name: user.DisplayName(), Avatar: user.ImageURL}, nil
	}
	if loginRequired || strings.TrimSpace(anonymousID) == "" {
		return domain.Participant{}, domain.ErrLoginRequired
	}
	short := anonymousID
	if len(short) > 8 {
		short = short[:8]
	}
	return domain.Participant{ID: anonymousID, Name: anonymousPrefix + short, Avatar: anonymousAvatar}, nil
}
