package tui

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"Cover-Art-Go/pkg/cover"
)

type stubAdapter struct {
	name string
	dims map[string][2]int
}

func (s *stubAdapter) Name() string { return s.name }

func (s *stubAdapter) SearchAlbumCandidates(_ *cover.Token, q cover.SearchQuery) []cover.AlbumCandidate {
	return []cover.AlbumCandidate{
		{Identifier: "a1", AlbumName: q.Album, ArtistName: q.Artist, SourceService: s.name},
		{Identifier: "a2", AlbumName: q.Album + " (Live)", ArtistName: q.Artist, SourceService: s.name},
	}
}

func (s *stubAdapter) ListPotentialImages(_ *cover.Token, c *cover.AlbumCandidate) []cover.PotentialImage {
	return []cover.PotentialImage{
		{Identifier: c.Identifier + "-small", FullImageURL: "https://img/" + c.Identifier + "-small", Source: c, IsFront: true},
		{Identifier: c.Identifier + "-big", FullImageURL: "https://img/" + c.Identifier + "-big", Source: c, IsFront: true},
	}
}

func (s *stubAdapter) ResolveImageDetails(_ *cover.Token, pi *cover.PotentialImage) *cover.ImageResult {
	d, ok := s.dims[pi.Identifier]
	if !ok {
		return nil
	}
	return cover.NewImageResult(pi, d[0], d[1])
}

func key(s string) tea.KeyMsg {
	switch s {
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// step feeds msg to m and runs the returned command once, feeding its result
// back. Batch and quit commands are not followed.
func step(t *testing.T, m Model, msg tea.Msg) (Model, tea.Msg) {
	t.Helper()
	next, cmd := m.Update(msg)
	var out tea.Msg
	if cmd != nil {
		out = cmd()
	}
	return next.(Model), out
}

func started(t *testing.T, cfg Config) Model {
	t.Helper()
	m := NewModel(cfg)
	msg := m.start()()
	sm, ok := msg.(startedMsg)
	require.True(t, ok)
	require.NoError(t, sm.err)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, sm.session.Wait(ctx))
	next, _ := m.Update(sm)
	return next.(Model)
}

func TestPickAndSave(t *testing.T) {
	orch := cover.New(cover.NewRegistry(&stubAdapter{name: "iTunes", dims: map[string][2]int{
		"a2-small": {100, 100},
		"a2-big":   {1200, 1200},
	}}))
	defer orch.Shutdown()

	var saved *cover.ImageResult
	m := started(t, Config{
		Orchestrator: orch,
		Query:        cover.SearchQuery{Artist: "Daft Punk", Album: "Alive"},
		Options:      cover.Options{MinWidth: 500, MinHeight: 500},
		NoSavePrompt: true,
		Save: func(_ context.Context, img *cover.ImageResult) (string, error) {
			saved = img
			return "/tmp/cover.jpg", nil
		},
	})
	require.Equal(t, StageCandidates, m.stage)
	require.Len(t, m.rows, 2)
	assert.Contains(t, m.View(), "Daft Punk - Alive (Live)")

	m, _ = step(t, m, key("down"))
	m, msg := step(t, m, key("enter"))
	assert.Equal(t, StageWorking, m.stage)
	m, _ = step(t, m, msg)
	require.Equal(t, StageImages, m.stage)
	require.Len(t, m.images, 2)

	// The first image is too small and is rejected.
	m, msg = step(t, m, key("enter"))
	m, _ = step(t, m, msg)
	assert.Equal(t, StageImages, m.stage)
	assert.Contains(t, m.notice, "100x100")

	m, _ = step(t, m, key("down"))
	m, msg = step(t, m, key("enter"))
	m, msg = step(t, m, msg)
	_, isSaved := msg.(savedMsg)
	require.True(t, isSaved, "accepted image is saved without prompting")
	m, _ = step(t, m, msg)

	assert.Equal(t, StageDone, m.stage)
	require.NotNil(t, saved)
	assert.Equal(t, "a2-big", saved.Identifier)
	assert.Equal(t, "/tmp/cover.jpg", m.Outcome().Path)
	assert.Contains(t, m.View(), "Saved to /tmp/cover.jpg")
}

func TestConfirmDeclined(t *testing.T) {
	orch := cover.New(cover.NewRegistry(&stubAdapter{name: "iTunes", dims: map[string][2]int{"a1-small": {600, 600}}}))
	defer orch.Shutdown()
	m := started(t, Config{
		Orchestrator: orch,
		Query:        cover.SearchQuery{Album: "Alive"},
		Save: func(context.Context, *cover.ImageResult) (string, error) {
			t.Fatal("declined cover must not be saved")
			return "", nil
		},
	})
	m, msg := step(t, m, key("enter"))
	m, _ = step(t, m, msg)
	m, msg = step(t, m, key("enter"))
	m, _ = step(t, m, msg)
	require.Equal(t, StageConfirm, m.stage)
	assert.Contains(t, m.View(), "600x600")

	next, cmd := m.Update(key("n"))
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
	assert.Empty(t, next.(Model).Outcome().Path)
}

func TestSaveErrorAndBack(t *testing.T) {
	orch := cover.New(cover.NewRegistry(&stubAdapter{name: "iTunes", dims: map[string][2]int{"a1-small": {600, 600}}}))
	defer orch.Shutdown()
	m := started(t, Config{
		Orchestrator: orch,
		Query:        cover.SearchQuery{Album: "Alive"},
		NoSavePrompt: true,
		Save: func(context.Context, *cover.ImageResult) (string, error) {
			return "", errors.New("disk full")
		},
	})
	m, msg := step(t, m, key("enter"))
	m, _ = step(t, m, msg)
	m, _ = step(t, m, key("esc"))
	assert.Equal(t, StageCandidates, m.stage)

	m, msg = step(t, m, key("enter"))
	m, _ = step(t, m, msg)
	m, msg = step(t, m, key("enter"))
	m, msg = step(t, m, msg)
	m, _ = step(t, m, msg)
	assert.Equal(t, StageError, m.stage)
	assert.True(t, strings.Contains(m.View(), "disk full"))
}

func TestStartErrorIsShown(t *testing.T) {
	orch := cover.New(cover.NewRegistry())
	defer orch.Shutdown()
	m := NewModel(Config{Orchestrator: orch})
	next, _ := m.Update(m.start()())
	got := next.(Model)
	assert.Equal(t, StageError, got.stage)
	assert.Error(t, got.Err())
}
