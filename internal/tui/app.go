// Package tui implements the terminal client on top of the daemon's local API.
package tui

import (
	"context"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/rivo/tview"

	"github.com/amora-chat/amora/internal/tui/client"
	"github.com/amora-chat/amora/internal/tui/keys"
	"github.com/amora-chat/amora/internal/tui/model"
	"github.com/amora-chat/amora/internal/tui/views"
)

// App is the main TUI application shell.
type App struct {
	app       *tview.Application
	pages     *tview.Pages
	vm        *model.ViewModel
	api       *client.Client
	registry  *keys.Registry
	statusBar *views.StatusBar
	convList  *views.ConversationList
	msgView   *views.MessageView
	composer  *views.Composer
	searchV   *views.SearchView
	authView  *tview.TextView
	cmdBar    *tview.InputField
	rootFlex  *tview.Flex
	ctx       context.Context
	cancel    context.CancelFunc
}

// NewApp creates the TUI application.
func NewApp(c *client.Client, profileName string) *App {
	ctx, cancel := context.WithCancel(context.Background())
	vm := model.NewViewModel(c)

	auth := tview.NewTextView().SetDynamicColors(true).SetTextAlign(tview.AlignCenter)
	auth.SetBorder(true).SetTitle(" Sign In ")

	cmdBar := tview.NewInputField().
		SetLabel(" : ").
		SetFieldWidth(0)

	a := &App{
		app:       tview.NewApplication(),
		pages:     tview.NewPages(),
		vm:        vm,
		api:       c,
		registry:  keys.NewRegistry(),
		statusBar: views.NewStatusBar(),
		convList:  views.NewConversationList(),
		msgView:   views.NewMessageView(),
		composer:  views.NewComposer(),
		searchV:   views.NewSearchView(),
		authView:  auth,
		cmdBar:    cmdBar,
		ctx:       ctx,
		cancel:    cancel,
	}

	a.statusBar.SetProfile(profileName)
	a.setupBindings()
	a.setupCallbacks()
	a.setupLayout()

	return a
}

func (a *App) setupBindings() {
	a.registry.AddGlobal("quit", &keys.Action{
		Rune: 'q', Key: tcell.KeyRune,
		Description: "q:quit", Visible: true,
		Handler: func() { a.app.Stop() },
	})
	a.registry.AddGlobal("search", &keys.Action{
		Rune: 's', Key: tcell.KeyRune,
		Description: "s:search", Visible: true,
		Handler: func() { a.showSearch() },
	})
	a.registry.AddView("conversations", "refresh", &keys.Action{
		Rune: 'r', Key: tcell.KeyRune,
		Description: "r:refresh", Visible: true,
		Handler: func() { a.refreshDirectory() },
	})
}

func (a *App) setupCallbacks() {
	a.convList.SetSelectedFunc(func(row, col int) {
		if id := a.convList.Selected(); id != "" {
			a.openConversation(id)
		}
	})

	a.composer.SetOnSend(func(text string) {
		go func() {
			_ = a.vm.SendText(a.ctx, text)
			a.app.QueueUpdateDraw(func() {
				a.msgView.Update(a.vm.GetTimeline())
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
		}()
	})

	a.composer.SetOnTyping(func() {
		go a.vm.NotifyTyping(a.ctx)
	})

	a.searchV.SetOnQuery(func(query string) {
		go func() {
			results, err := a.vm.Search(a.ctx, query)
			if err != nil {
				a.vm.Flash.Set("Search failed: "+err.Error(), 5*time.Second)
				return
			}
			a.app.QueueUpdateDraw(func() {
				a.searchV.Update(results)
				a.app.SetFocus(a.searchV.Results())
			})
		}()
	})
}

func (a *App) setupLayout() {
	convFlex := tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.msgView, 0, 1, false).
		AddItem(a.composer, 1, 0, false)

	a.pages.AddPage("conversations", a.convList, true, true)
	a.pages.AddPage("conversation", convFlex, true, false)
	a.pages.AddPage("search", a.searchV, true, false)
	a.pages.AddPage("auth", a.authView, true, false)

	a.rootFlex = tview.NewFlex().
		SetDirection(tview.FlexRow).
		AddItem(a.pages, 0, 1, true).
		AddItem(a.cmdBar, 0, 0, false).
		AddItem(a.statusBar, 1, 0, false)

	a.cmdBar.SetDoneFunc(func(key tcell.Key) {
		text := a.cmdBar.GetText()
		a.hideCommandBar()
		if key == tcell.KeyEnter && text != "" {
			a.runCommand(ParseCommand(text))
		}
	})

	a.app.SetRoot(a.rootFlex, true)

	a.app.SetInputCapture(func(event *tcell.EventKey) *tcell.EventKey {
		currentPage, _ := a.pages.GetFrontPage()

		if event.Key() == tcell.KeyEscape {
			if a.app.GetFocus() == a.cmdBar {
				a.hideCommandBar()
				return nil
			}
			switch currentPage {
			case "conversation":
				go a.vm.CloseConversation(a.ctx)
				a.pages.SwitchToPage("conversations")
				a.app.SetFocus(a.convList)
				return nil
			case "search", "auth":
				a.pages.SwitchToPage("conversations")
				a.app.SetFocus(a.convList)
				return nil
			}
		}

		// Let text input widgets handle all keys normally.
		focused := a.app.GetFocus()
		if _, ok := focused.(*tview.InputField); ok {
			return event
		}

		// 'i' focuses the composer (only when not already in an input field).
		if currentPage == "conversation" && event.Key() == tcell.KeyRune && event.Rune() == 'i' {
			a.app.SetFocus(a.composer.InputField)
			return nil
		}

		if event.Key() == tcell.KeyRune && event.Rune() == ':' {
			a.showCommandBar()
			return nil
		}

		if a.registry.HandleEvent(currentPage, event) {
			return nil
		}

		return event
	})
}

func (a *App) openConversation(displayID string) {
	go func() {
		if err := a.vm.OpenConversation(a.ctx, displayID); err != nil {
			a.vm.Flash.Set("Open failed: "+err.Error(), 5*time.Second)
			return
		}
		name := displayID
		for _, e := range a.vm.GetConversations() {
			if e.DisplayID == displayID {
				if e.Name != "" {
					name = e.Name
				}
				break
			}
		}
		a.app.QueueUpdateDraw(func() {
			a.msgView.SetCounterpart(name)
			a.msgView.Update(a.vm.GetTimeline())
			a.pages.SwitchToPage("conversation")
			a.app.SetFocus(a.composer.InputField)
		})
	}()
}

func (a *App) refreshDirectory() {
	go func() {
		if err := a.vm.RefreshConversations(a.ctx); err != nil {
			a.vm.Flash.Set("Refresh failed: "+err.Error(), 5*time.Second)
			return
		}
		a.app.QueueUpdateDraw(func() {
			a.convList.Update(a.vm.GetConversations())
		})
	}()
}

func (a *App) showCommandBar() {
	a.cmdBar.SetText("")
	a.rootFlex.ResizeItem(a.cmdBar, 1, 0)
	a.app.SetFocus(a.cmdBar)
}

func (a *App) hideCommandBar() {
	a.rootFlex.ResizeItem(a.cmdBar, 0, 0)
	page, _ := a.pages.GetFrontPage()
	if page == "conversation" {
		a.app.SetFocus(a.composer.InputField)
	} else {
		a.app.SetFocus(a.convList)
	}
}

func (a *App) runCommand(cmd Command) {
	switch cmd.Name {
	case "q", "quit":
		a.app.Stop()
	case "refresh":
		a.refreshDirectory()
	case "search":
		a.showSearch()
	case "open":
		if cmd.Args == "" {
			a.vm.Flash.Set("Usage: open <username>", 5*time.Second)
			return
		}
		go func() {
			conv, err := a.api.Resolve(a.ctx, "", "", cmd.Args)
			if err != nil {
				a.vm.Flash.Set("Open failed: "+err.Error(), 5*time.Second)
				return
			}
			_ = a.vm.LoadConversations(a.ctx)
			a.openConversation(conv.DisplayID)
		}()
	default:
		a.vm.Flash.Set("Unknown command: "+cmd.Name, 5*time.Second)
	}
}

func (a *App) showSearch() {
	a.pages.SwitchToPage("search")
	a.app.SetFocus(a.searchV.Input())
}

// Run starts the TUI application.
func (a *App) Run() error {
	go func() {
		_ = a.vm.LoadStatus(a.ctx)
		_ = a.vm.LoadConversations(a.ctx)

		a.app.QueueUpdateDraw(func() {
			a.convList.Update(a.vm.GetConversations())
			if st := a.vm.GetStatus(); st != nil {
				a.statusBar.SetState(st.State)
				if st.State == "AUTH_REQUIRED" {
					a.authView.SetText("\n\nNo valid session token.\n\nRun: amoractl login\n\nThen restart the daemon.")
					a.pages.SwitchToPage("auth")
				}
			}
		})

		a.startEventLoop()
		a.startRefreshLoop()
	}()

	return a.app.Run()
}

// startEventLoop consumes the daemon's push-driven event stream. The ticker
// in startRefreshLoop covers gaps when the stream drops.
func (a *App) startEventLoop() {
	go func() {
		for {
			events, err := a.api.Events(a.ctx, "chat.")
			if err != nil {
				select {
				case <-a.ctx.Done():
					return
				case <-time.After(2 * time.Second):
					continue
				}
			}
			for evt := range events {
				a.handleEvent(evt)
			}
			if a.ctx.Err() != nil {
				return
			}
		}
	}()
}

func (a *App) handleEvent(evt client.Event) {
	switch evt.Kind {
	case "chat.timeline", "chat.typing_changed", "chat.send_failed":
		go func() {
			_ = a.vm.LoadTimeline(a.ctx)
			a.app.QueueUpdateDraw(func() {
				if page, _ := a.pages.GetFrontPage(); page == "conversation" {
					a.msgView.Update(a.vm.GetTimeline())
				}
				a.statusBar.SetFlash(a.vm.Flash.Get())
			})
		}()
	case "chat.directory":
		go func() {
			_ = a.vm.LoadConversations(a.ctx)
			a.app.QueueUpdateDraw(func() {
				if page, _ := a.pages.GetFrontPage(); page == "conversations" {
					a.convList.Update(a.vm.GetConversations())
				}
			})
		}()
	}
}

func (a *App) startRefreshLoop() {
	ticker := time.NewTicker(5 * time.Second)
	go func() {
		for {
			select {
			case <-ticker.C:
				_ = a.vm.LoadStatus(a.ctx)
				_ = a.vm.LoadConversations(a.ctx)
				a.app.QueueUpdateDraw(func() {
					currentPage, _ := a.pages.GetFrontPage()
					if currentPage == "conversations" {
						a.convList.Update(a.vm.GetConversations())
					}
					if st := a.vm.GetStatus(); st != nil {
						a.statusBar.SetState(st.State)
						if currentPage == "auth" && st.State != "AUTH_REQUIRED" {
							a.convList.Update(a.vm.GetConversations())
							a.pages.SwitchToPage("conversations")
							a.app.SetFocus(a.convList)
						}
					}
					a.statusBar.SetFlash(a.vm.Flash.Get())
				})
			case <-a.ctx.Done():
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop gracefully shuts down the TUI.
func (a *App) Stop() {
	a.cancel()
	a.app.Stop()
}
