package app_test

import (
	"context"
	"errors"
	"testing"

	"github.com/notely/notely/core/api"
	"github.com/notely/notely/core/app"
	"github.com/notely/notely/core/auth"
	"github.com/notely/notely/core/dom"
	"github.com/notely/notely/core/events"
	"github.com/notely/notely/core/model"
	"github.com/notely/notely/core/sidebar"
)

func newApp(t *testing.T, fake *api.Fake, user *auth.User) (*app.App, *dom.Headless, *events.Bus, *auth.Fake) {
	t.Helper()
	doc := dom.NewHeadless()
	bus := events.NewBus()
	authn := auth.NewFake(doc, user, "tok")
	a := app.New(doc, doc.Body(), fake, authn, app.Options{Bus: bus, Async: sidebar.Inline})
	t.Cleanup(a.Stop)
	return a, doc, bus, authn
}

func TestRender_PublishesWhenFoldersExist(t *testing.T) {
	fake := api.NewFake().Seed([]model.Folder{{ID: "1", Name: "Test Folder"}})
	a, doc, bus, _ := newApp(t, fake, nil)
	var fetched int
	bus.Subscribe(events.FetchedFolders, func(events.Event) { fetched++ })

	if err := a.Render(context.Background(), doc.Body()); err != nil {
		t.Fatalf("Render: %v", err)
	}

	if fetched != 1 {
		t.Errorf("FetchedFolders published %d times, want 1", fetched)
	}
	if n := len(doc.Body().QueryAll(".sidebar")); n != 1 {
		t.Fatalf("sidebars = %d, want 1", n)
	}
	if got := doc.Body().Query(".sidebar__folder_name").Text(); got != "Test Folder" {
		t.Errorf("folder = %q", got)
	}
	if doc.Body().Query(".editor #note-editor") == nil {
		t.Error("editor not mounted")
	}
	calls := fake.Calls()
	if page := calls[0].Body.(api.Page); page != api.DefaultFolderPage {
		t.Errorf("page = %+v, want %+v", page, api.DefaultFolderPage)
	}
}

func TestRender_NoPublishWhenEmpty(t *testing.T) {
	a, doc, bus, _ := newApp(t, api.NewFake(), nil)
	var fetched int
	bus.Subscribe(events.FetchedFolders, func(events.Event) { fetched++ })

	if err := a.Render(context.Background(), doc.Body()); err != nil {
		t.Fatalf("Render: %v", err)
	}
	if fetched != 0 {
		t.Errorf("FetchedFolders published for an empty list")
	}
	if doc.Body().Query(".sidebar") == nil || doc.Body().Query(".sidebar__folder_item") != nil {
		t.Error("want an empty sidebar")
	}
}

func TestRender_FailureKeepsEmptySidebar(t *testing.T) {
	fake := api.NewFake()
	fake.FailWith(api.OpFetchFolders, errors.New("offline"))
	a, doc, _, _ := newApp(t, fake, nil)

	if err := a.Render(context.Background(), doc.Body()); err == nil {
		t.Fatal("Render error = nil")
	}
	if doc.Body().Query(".sidebar") == nil {
		t.Error("sidebar missing after a failed load")
	}
	if doc.Body().Query(".notice.notice--error") == nil {
		t.Error("no notice for the failed load")
	}
}

func TestStart_SignedOutShowsLogin(t *testing.T) {
	a, doc, _, _ := newApp(t, api.NewFake(), nil)
	a.Start(context.Background())

	heading := doc.Body().Query(".login-container > .content-wrapper > .heading")
	if heading == nil || heading.Text() != app.Heading {
		t.Fatal("login view not rendered")
	}
	if doc.Body().Query(".content-wrapper .fake-auth-container") == nil {
		t.Error("auth container not rendered")
	}
	if doc.Body().Query(".sidebar") != nil {
		t.Error("workspace rendered while signed out")
	}
}

func TestStart_SwitchesOnAuthChanges(t *testing.T) {
	fake := api.NewFake().Seed([]model.Folder{{ID: "1", Name: "A"}})
	a, doc, _, authn := newApp(t, fake, &auth.User{ID: "u1"})
	a.Start(context.Background())

	if doc.Body().Query(".logout-btn") == nil || doc.Body().Query(".sidebar__folder_item") == nil {
		t.Fatal("workspace not rendered for signed-in user")
	}
	if a.Sidebar() == nil || a.Editor() == nil {
		t.Fatal("components not exposed")
	}

	doc.Body().Query(".logout-btn").Click()

	if authn.SignOuts() != 1 {
		t.Errorf("SignOuts = %d, want 1", authn.SignOuts())
	}
	if doc.Body().Query(".sidebar") != nil || doc.Body().Query(".logout-btn") != nil {
		t.Error("workspace survived sign out")
	}
	if doc.Body().Query(".login-container") == nil {
		t.Error("login view not shown after sign out")
	}

	doc.Body().Query(".fake-auth-signin").Click()
	if n := len(doc.Body().QueryAll(".sidebar")); n != 1 {
		t.Errorf("sidebars after sign in = %d, want 1", n)
	}
	if doc.Body().Query(".login-container") != nil {
		t.Error("login view survived sign in")
	}
}
