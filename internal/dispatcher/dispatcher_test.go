package dispatcher

import (
	"context"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/nyxbot/voiceengine/internal/coordinator"
	"github.com/nyxbot/voiceengine/internal/domain"
	"github.com/nyxbot/voiceengine/internal/settingscache"
	"github.com/nyxbot/voiceengine/pkg/logger"
)

type fakeSettingsStore struct {
	rows map[string]*domain.GuildSettings
}

func (f *fakeSettingsStore) Get(ctx context.Context, guildID string) (*domain.GuildSettings, error) {
	return f.rows[guildID], nil
}

func (f *fakeSettingsStore) Upsert(ctx context.Context, settings *domain.GuildSettings) error {
	if f.rows == nil {
		f.rows = make(map[string]*domain.GuildSettings)
	}
	cp := *settings
	f.rows[settings.GuildID] = &cp
	return nil
}

func newTestDispatcher(t *testing.T, store *fakeSettingsStore) *Dispatcher {
	t.Helper()
	sess := &discordgo.Session{State: discordgo.NewState()}
	cache := settingscache.New(store, 0, 0)
	return New(sess, coordinator.New(logger.New(logger.Config{Level: "error"})), cache, logger.New(logger.Config{Level: "error"}))
}

func interactionFor(guildID, userID string, roles []string) *discordgo.InteractionCreate {
	return &discordgo.InteractionCreate{
		Interaction: &discordgo.Interaction{
			GuildID: guildID,
			Member: &discordgo.Member{
				User:  &discordgo.User{ID: userID},
				Roles: roles,
			},
		},
	}
}

func TestAllowedDefaultsToEveryone(t *testing.T) {
	d := newTestDispatcher(t, &fakeSettingsStore{})
	i := interactionFor("g1", "u1", nil)
	if !d.allowed(context.Background(), i, SurfaceSlashCommand) {
		t.Fatal("expected default settings to allow everyone")
	}
}

func TestAllowedServerOwnerRestrictsNonOwner(t *testing.T) {
	settings := domain.DefaultSettings("g1")
	settings.BotControls.Level = domain.AccessServerOwner
	store := &fakeSettingsStore{rows: map[string]*domain.GuildSettings{"g1": settings}}
	d := newTestDispatcher(t, store)

	if err := d.session.State.GuildAdd(&discordgo.Guild{ID: "g1", OwnerID: "owner1"}); err != nil {
		t.Fatal(err)
	}

	nonOwner := interactionFor("g1", "u1", nil)
	if d.allowed(context.Background(), nonOwner, SurfaceBotControl) {
		t.Fatal("expected a non-owner to be denied when the surface is server_owner-gated")
	}

	owner := interactionFor("g1", "owner1", nil)
	if !d.allowed(context.Background(), owner, SurfaceBotControl) {
		t.Fatal("expected the guild owner to be allowed")
	}
}

func TestAllowedRolesChecksMembership(t *testing.T) {
	settings := domain.DefaultSettings("g1")
	settings.Components.Level = domain.AccessRoles
	settings.Components.RoleIDs = []string{"dj"}
	store := &fakeSettingsStore{rows: map[string]*domain.GuildSettings{"g1": settings}}
	d := newTestDispatcher(t, store)
	if err := d.session.State.GuildAdd(&discordgo.Guild{ID: "g1", OwnerID: "owner1"}); err != nil {
		t.Fatal(err)
	}

	noRole := interactionFor("g1", "u1", []string{"member"})
	if d.allowed(context.Background(), noRole, SurfaceComponent) {
		t.Fatal("expected a user without the required role to be denied")
	}

	hasRole := interactionFor("g1", "u2", []string{"dj"})
	if !d.allowed(context.Background(), hasRole, SurfaceComponent) {
		t.Fatal("expected a user with the required role to be allowed")
	}
}

func TestRegisterComponentLeavesOtherPrefixesUnregistered(t *testing.T) {
	d := newTestDispatcher(t, &fakeSettingsStore{})
	called := false
	d.RegisterComponent("playback", SurfaceBotControl, func(ctx context.Context, d *Dispatcher, i *discordgo.InteractionCreate, parts []string) error {
		called = true
		return nil
	})

	_, ok := d.components["queue"]
	if ok {
		t.Fatal("expected no handler registered under an unregistered prefix")
	}
	if called {
		t.Fatal("handler should not have run for an unregistered prefix")
	}
}
