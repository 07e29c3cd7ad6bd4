package model

import (
	"context"
	"sync"
	"time"

	"github.com/amora-chat/amora/internal/tui/client"
)

// ViewModel caches daemon state between refreshes and signals UI updates.
type ViewModel struct {
	mu sync.RWMutex

	client        *client.Client
	Status        *client.Status
	Conversations []client.Conversation
	Timeline      *client.Timeline
	ActiveDisplay string
	Flash         Flash
}

// NewViewModel creates a new view model connected to the daemon client.
func NewViewModel(c *client.Client) *ViewModel {
	return &ViewModel{client: c}
}

// LoadStatus fetches the daemon state.
func (vm *ViewModel) LoadStatus(ctx context.Context) error {
	st, err := vm.client.Status(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Status = st
	vm.mu.Unlock()
	return nil
}

// LoadConversations fetches the directory.
func (vm *ViewModel) LoadConversations(ctx context.Context) error {
	convs, err := vm.client.Conversations(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Conversations = convs
	vm.mu.Unlock()
	return nil
}

// RefreshConversations asks the daemon to refetch the directory.
func (vm *ViewModel) RefreshConversations(ctx context.Context) error {
	convs, err := vm.client.Refresh(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Conversations = convs
	vm.mu.Unlock()
	return nil
}

// OpenConversation selects a conversation and loads its timeline snapshot.
func (vm *ViewModel) OpenConversation(ctx context.Context, displayID string) error {
	if err := vm.client.Select(ctx, displayID); err != nil {
		return err
	}
	vm.mu.Lock()
	vm.ActiveDisplay = displayID
	vm.mu.Unlock()
	return vm.LoadTimeline(ctx)
}

// CloseConversation deselects the open conversation.
func (vm *ViewModel) CloseConversation(ctx context.Context) {
	_ = vm.client.Deselect(ctx)
	vm.mu.Lock()
	vm.ActiveDisplay = ""
	vm.Timeline = nil
	vm.mu.Unlock()
}

// LoadTimeline fetches the open conversation's snapshot.
func (vm *ViewModel) LoadTimeline(ctx context.Context) error {
	tl, err := vm.client.Timeline(ctx)
	if err != nil {
		return err
	}
	vm.mu.Lock()
	vm.Timeline = tl
	vm.mu.Unlock()
	return nil
}

// SendText performs an optimistic send; the placeholder appears on the next
// timeline load.
func (vm *ViewModel) SendText(ctx context.Context, text string) error {
	if err := vm.client.Send(ctx, text); err != nil {
		vm.Flash.Set("Send failed: "+err.Error(), 5*time.Second)
		return err
	}
	return vm.LoadTimeline(ctx)
}

// NotifyTyping reports a keystroke to the daemon.
func (vm *ViewModel) NotifyTyping(ctx context.Context) {
	_ = vm.client.Typing(ctx)
}

// Search queries the cached message bodies.
func (vm *ViewModel) Search(ctx context.Context, query string) ([]client.SearchResult, error) {
	return vm.client.Search(ctx, query)
}

// GetStatus returns a snapshot of the daemon state.
func (vm *ViewModel) GetStatus() *client.Status {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Status
}

// GetConversations returns a snapshot of the directory.
func (vm *ViewModel) GetConversations() []client.Conversation {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Conversations
}

// GetTimeline returns a snapshot of the open conversation.
func (vm *ViewModel) GetTimeline() *client.Timeline {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.Timeline
}

// GetActiveDisplay returns the open conversation's display id.
func (vm *ViewModel) GetActiveDisplay() string {
	vm.mu.RLock()
	defer vm.mu.RUnlock()
	return vm.ActiveDisplay
}
