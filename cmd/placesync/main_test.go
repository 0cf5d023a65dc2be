package main

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/async"
	"github.com/njoerd114/placesync/internal/model"
	syncp "github.com/njoerd114/placesync/internal/sync"
)

func TestDeliver_ReturnsResult(t *testing.T) {
	v, err := deliver(context.Background(), async.NewScope(), async.NewLoop(),
		func(context.Context) (int, error) { return 42, nil })
	require.NoError(t, err)
	require.Equal(t, 42, v)

	_, err = deliver(context.Background(), async.NewScope(), async.NewLoop(),
		func(context.Context) (int, error) { return 0, apperr.ErrNotFound })
	require.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestDeliver_Interrupted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	scope := async.NewScope()
	release := make(chan struct{})
	defer close(release)

	go func() {
		time.Sleep(10 * time.Millisecond)
		scope.Close()
		cancel()
	}()
	_, err := deliver(ctx, scope, async.NewLoop(), func(context.Context) (int, error) {
		<-release
		return 1, nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestParse_RequiredFlags(t *testing.T) {
	fs, g := newFlagSet("test")
	fs.SetOutput(&bytes.Buffer{})
	email := fs.String("email", "", "")

	require.NoError(t, parse(fs, []string{"--email", "a@b.io", "--verbose"}, "email"))
	require.Equal(t, "a@b.io", *email)
	require.True(t, g.verbose)

	fs, _ = newFlagSet("test")
	fs.SetOutput(&bytes.Buffer{})
	fs.String("email", "", "")
	require.ErrorIs(t, parse(fs, nil, "email"), errUsage)
	require.ErrorIs(t, parse(fs, []string{"--nope"}), errUsage)
}

func TestRun_UnknownCommand(t *testing.T) {
	require.ErrorIs(t, run(nil), errUsage)
	require.ErrorIs(t, run([]string{"frobnicate"}), errUsage)
}

func TestPrintLocations(t *testing.T) {
	var buf bytes.Buffer
	printLocations(&buf, []model.Location{
		{ID: "loc-1", Name: "Hrad", NameEn: "Castle", CategoryID: "sights", Latitude: 50.0904, Longitude: 14.4005},
	}, "en")
	out := buf.String()
	require.Contains(t, out, "ID")
	require.Contains(t, out, "Castle")
	require.Contains(t, out, "50.0904, 14.4005")
}

func TestPrintComments(t *testing.T) {
	var buf bytes.Buffer
	printComments(&buf, nil)
	require.Equal(t, "No comments yet.\n", buf.String())

	buf.Reset()
	printComments(&buf, []model.Comment{{ID: "c1", UserID: "u1", LocationID: "loc-1", Text: "lovely"}})
	require.Contains(t, buf.String(), "lovely")
	require.Contains(t, buf.String(), "id c1")
}

func TestPrintRefresh(t *testing.T) {
	at := time.Date(2026, 3, 1, 12, 30, 5, 0, time.UTC)

	var buf bytes.Buffer
	printRefresh(&buf, at, syncp.RefreshStats{Locations: 3, Categories: 2, Added: 1, Changed: 2}, nil)
	require.Equal(t, "12:30:05  3 locations, 2 categories (+1 ~2 -0)\n", buf.String())

	buf.Reset()
	printRefresh(&buf, at, syncp.RefreshStats{}, errors.New("offline"))
	require.Equal(t, "12:30:05  refresh failed: offline\n", buf.String())
}

func TestFirstNonEmpty(t *testing.T) {
	require.Equal(t, "b", firstNonEmpty("", "b", "c"))
	require.Equal(t, "", firstNonEmpty())
}
