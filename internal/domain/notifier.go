package domain

import "context"

type Message struct {
	Text    string
	IsError bool
}

type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}
