package domain

import "errors"

var (
	// ErrNotFound indicates the requested entity was not found.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists indicates a uniqueness conflict.
	ErrAlreadyExists = errors.New("already exists")
	ErrInvalidInput  = errors.New("invalid input")

	ErrConversationCanceled = errors.New("conversation was canceled by the customer")
	ErrConversationTerminal = errors.New("conversation is closed")
	ErrInvalidTransition    = errors.New("invalid conversation status transition")
	ErrNoActiveConversation = errors.New("no active conversation")
	ErrLoginRequired        = errors.New("login required")

	ErrEmptyCart    = errors.New("cart is empty")
	ErrNotAtSummary = errors.New("checkout is not at the summary step")
)
