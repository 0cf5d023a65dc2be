package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/njoerd114/placesync/internal/apperr"
	"github.com/njoerd114/placesync/internal/auth"
	"github.com/njoerd114/placesync/internal/config"
	"github.com/njoerd114/placesync/internal/ledger"
	"github.com/njoerd114/placesync/internal/model"
	"github.com/njoerd114/placesync/internal/setup"
	syncp "github.com/njoerd114/placesync/internal/sync"
)

// stdout is where command output goes. Prompts and logs use stderr.
var stdout io.Writer = os.Stdout

// --- Setup & info ------------------------------------------------------------

func runSetup(ctx context.Context, args []string) error {
	fs, g := newFlagSet("setup")
	if err := parse(fs, args); err != nil {
		return err
	}
	logger, _ := newLogger(g.verbose)
	wiz := setup.NewWizard(os.Stdin, os.Stdout, g.configPath, logger)
	_, err := wiz.Run(ctx)
	return err
}

func runVersion(_ context.Context, _ []string) error {
	fmt.Fprintln(stdout, "placesync", version)
	return nil
}

// runStatus prints the configuration and the device's login history. It does
// not contact the remote services.
func runStatus(ctx context.Context, args []string) error {
	fs, g := newFlagSet("status")
	if err := parse(fs, args); err != nil {
		return err
	}
	logger, _ := newLogger(g.verbose)

	fmt.Fprintln(stdout, "placesync status")
	fmt.Fprintln(stdout, "----------------")

	cfg, err := config.Load(g.configPath)
	if err != nil {
		fmt.Fprintf(stdout, "  Config:     %s (%v)\n", g.configPath, err)
		return nil
	}
	fmt.Fprintf(stdout, "  Config:     %s\n", g.configPath)
	fmt.Fprintf(stdout, "  Project:    %s\n", cfg.ProjectID)
	if cfg.RefreshInterval > 0 {
		fmt.Fprintf(stdout, "  Refresh:    every %s\n", cfg.RefreshInterval)
	} else {
		fmt.Fprintf(stdout, "  Refresh:    disabled\n")
	}
	if cfg.Telemetry != nil {
		fmt.Fprintf(stdout, "  Telemetry:  %s\n", cfg.Telemetry.OTLPEndpoint)
	}

	path, err := ledgerPath(cfg)
	if err != nil {
		return err
	}
	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(stdout, "  Ledger:     not created yet (%s)\n", path)
		return nil
	}
	led, err := ledger.Open(ctx, path, logger)
	if err != nil {
		fmt.Fprintf(stdout, "  Ledger:     %s (unreadable: %v)\n", path, err)
		return nil
	}
	defer led.Close()

	n, err := led.Count(ctx)
	if err != nil {
		return fmt.Errorf("counting logins: %w", err)
	}
	fmt.Fprintf(stdout, "  Ledger:     %s (%d login(s))\n", path, n)

	recent, err := led.Recent(ctx, 5)
	if err != nil {
		return fmt.Errorf("reading recent logins: %w", err)
	}
	for _, r := range recent {
		fmt.Fprintf(stdout, "    #%-4d  %s\n", r.ID, r.Timestamp.Local().Format(time.DateTime))
	}
	return nil
}

// --- Browsing ----------------------------------------------------------------

func runLocations(ctx context.Context, args []string) error {
	fs, g := newFlagSet("locations")
	query := fs.String("query", "", "case-insensitive name search")
	category := fs.String("category", "", "only locations in this category")
	prefix := fs.String("prefix", "", "only locations whose name starts with this text")
	lang := fs.String("lang", "", `"en" prints English names`)
	if err := parse(fs, args); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	locs, err := call(ctx, a, func(ctx context.Context) ([]model.Location, error) {
		switch {
		case *category != "":
			return a.repo.Locations.ByCategory(ctx, *category)
		case *prefix != "":
			return a.repo.Locations.ByNamePrefix(ctx, *prefix)
		default:
			return a.repo.Locations.Search(ctx, *query)
		}
	})
	if err != nil {
		return err
	}
	printLocations(stdout, locs, *lang)
	return nil
}

func runLocation(ctx context.Context, args []string) error {
	fs, g := newFlagSet("location")
	id := fs.String("id", "", "location id")
	lang := fs.String("lang", "", `"en" prints English text`)
	if err := parse(fs, args, "id"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	loc, err := call(ctx, a, func(ctx context.Context) (model.Location, error) {
		return a.repo.Locations.Get(ctx, *id)
	})
	if err != nil {
		return err
	}

	description, country := loc.Description, loc.Country
	if strings.EqualFold(*lang, "en") {
		description = firstNonEmpty(loc.DescriptionEn, loc.Description)
		country = firstNonEmpty(loc.CountryEn, loc.Country)
	}
	fmt.Fprintf(stdout, "%s\n", loc.LocalizedName(*lang))
	fmt.Fprintf(stdout, "  ID:        %s\n", loc.ID)
	fmt.Fprintf(stdout, "  Category:  %s\n", loc.CategoryID)
	fmt.Fprintf(stdout, "  Address:   %s\n", loc.Address)
	fmt.Fprintf(stdout, "  Country:   %s\n", country)
	fmt.Fprintf(stdout, "  Position:  %.5f, %.5f\n", loc.Latitude, loc.Longitude)
	if loc.ImageURL != "" {
		fmt.Fprintf(stdout, "  Image:     %s\n", loc.ImageURL)
	}
	if description != "" {
		fmt.Fprintf(stdout, "\n%s\n", description)
	}
	return nil
}

func runCategories(ctx context.Context, args []string) error {
	fs, g := newFlagSet("categories")
	if err := parse(fs, args); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	cats, err := call(ctx, a, a.repo.Categories.All)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDESCRIPTION")
	for _, c := range cats {
		fmt.Fprintf(tw, "%s\t%s\n", c.ID, c.Description)
	}
	return tw.Flush()
}

func runComments(ctx context.Context, args []string) error {
	fs, g := newFlagSet("comments")
	locationID := fs.String("location", "", "location id")
	if err := parse(fs, args, "location"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	comments, err := call(ctx, a, func(ctx context.Context) ([]model.Comment, error) {
		return a.repo.Comments.ForLocation(ctx, *locationID)
	})
	if err != nil {
		return err
	}
	printComments(stdout, comments)
	return nil
}

// --- Account -----------------------------------------------------------------

// signIn prompts for the password of email and starts a session. It returns
// the password so that commands needing a fresh credential can reuse it.
func (a *app) signIn(ctx context.Context, email string) (model.User, string, error) {
	password := a.prompt.Secret("Password for " + email)
	if password == "" {
		return model.User{}, "", errors.New("no password given")
	}
	u, err := call(ctx, a, func(ctx context.Context) (model.User, error) {
		return a.repo.Accounts.SignIn(ctx, email, password)
	})
	return u, password, err
}

func runSignUp(ctx context.Context, args []string) error {
	fs, g := newFlagSet("signup")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "display name")
	if err := parse(fs, args, "email", "name"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	password := a.prompt.Secret("Choose a password")
	if again := a.prompt.Secret("Repeat password"); again != password {
		return apperr.Errorf(apperr.KindValidationFailed, "signup", "passwords do not match")
	}
	u, err := call(ctx, a, func(ctx context.Context) (model.User, error) {
		return a.repo.Accounts.SignUp(ctx, *name, *email, password)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Account created for %s <%s> (id %s)\n", u.Name, u.Email, u.ID)
	return nil
}

func runLogin(ctx context.Context, args []string) error {
	fs, g := newFlagSet("login")
	email := fs.String("email", "", "account email")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	previous, hadPrevious := a.repo.Accounts.LastLogin(ctx)
	u, _, err := a.signIn(ctx, *email)
	if apperr.Is(err, apperr.KindPartialDeletion) {
		a.repo.Accounts.SignOut()
		fmt.Fprintln(stdout, "Run delete-account to finish removing this account.")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Signed in as %s <%s>\n", u.Name, u.Email)
	if hadPrevious {
		fmt.Fprintf(stdout, "Previous login on this device: %s\n", previous.Local().Format(time.DateTime))
	}
	return nil
}

func runResetPassword(ctx context.Context, args []string) error {
	fs, g := newFlagSet("reset-password")
	email := fs.String("email", "", "account email")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if err := exec(ctx, a, func(ctx context.Context) error {
		return a.repo.Accounts.SendPasswordReset(ctx, *email)
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Password reset email sent to %s\n", *email)
	return nil
}

func runProfile(ctx context.Context, args []string) error {
	fs, g := newFlagSet("profile")
	email := fs.String("email", "", "account email")
	name := fs.String("name", "", "new display name")
	newEmail := fs.String("new-email", "", "new account email")
	picture := fs.String("picture", "", "new profile picture URL")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	u, password, err := a.signIn(ctx, *email)
	if err != nil {
		return err
	}
	defer a.repo.Accounts.SignOut()

	change := syncp.ProfileChange{Name: *name, Email: *newEmail, ProfilePictureURL: *picture}
	if change != (syncp.ProfileChange{}) {
		if change.Email != "" {
			change.Password = password
		}
		u, err = call(ctx, a, func(ctx context.Context) (model.User, error) {
			return a.repo.Accounts.UpdateProfile(ctx, change)
		})
		if err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Profile updated.")
	}
	fmt.Fprintf(stdout, "  ID:       %s\n", u.ID)
	fmt.Fprintf(stdout, "  Name:     %s\n", u.Name)
	fmt.Fprintf(stdout, "  Email:    %s\n", u.Email)
	if u.ProfilePictureURL != "" {
		fmt.Fprintf(stdout, "  Picture:  %s\n", u.ProfilePictureURL)
	}
	if !u.CreatedAt.IsZero() {
		fmt.Fprintf(stdout, "  Joined:   %s\n", u.CreatedAt.Local().Format(time.DateOnly))
	}
	return nil
}

func runDeleteAccount(ctx context.Context, args []string) error {
	fs, g := newFlagSet("delete-account")
	email := fs.String("email", "", "account email")
	yes := fs.Bool("yes", false, "do not ask for confirmation")
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	// An unfinished earlier deletion still has a session to finish with.
	_, password, err := a.signIn(ctx, *email)
	if err != nil && !apperr.Is(err, apperr.KindPartialDeletion) {
		return err
	}
	if !*yes && !a.prompt.Confirm(fmt.Sprintf("Permanently delete the account %s?", *email), false) {
		a.repo.Accounts.SignOut()
		fmt.Fprintln(stdout, "Nothing deleted.")
		return nil
	}

	err = exec(ctx, a, func(ctx context.Context) error {
		return a.repo.Accounts.DeleteAccount(ctx, auth.Credential{Email: *email, Password: password})
	})
	if apperr.Is(err, apperr.KindPartialDeletion) {
		fmt.Fprintln(stdout, "Run delete-account again to finish removing the sign-in.")
	}
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Account %s deleted.\n", *email)
	return nil
}

// --- Favorites & comments ----------------------------------------------------

func runFavorites(ctx context.Context, args []string) error {
	fs, g := newFlagSet("favorites")
	email := fs.String("email", "", "account email")
	lang := fs.String("lang", "", `"en" prints English names`)
	if err := parse(fs, args, "email"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if _, _, err := a.signIn(ctx, *email); err != nil {
		return err
	}
	defer a.repo.Accounts.SignOut()

	locs, err := call(ctx, a, a.repo.Favorites.FavoriteLocations)
	if err != nil {
		return err
	}
	if len(locs) == 0 {
		fmt.Fprintln(stdout, "No favorites yet.")
		return nil
	}
	printLocations(stdout, locs, *lang)
	return nil
}

func runFavorite(ctx context.Context, args []string) error {
	fs, g := newFlagSet("favorite")
	email := fs.String("email", "", "account email")
	locationID := fs.String("location", "", "location id")
	if err := parse(fs, args, "email", "location"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if _, _, err := a.signIn(ctx, *email); err != nil {
		return err
	}
	defer a.repo.Accounts.SignOut()

	state, err := call(ctx, a, func(ctx context.Context) (syncp.State, error) {
		return a.toggle.Toggle(ctx, *locationID)
	})
	if err != nil {
		return err
	}
	switch state {
	case syncp.StateFavorited:
		fmt.Fprintf(stdout, "Added %s to favorites.\n", *locationID)
	case syncp.StateNotFavorited:
		fmt.Fprintf(stdout, "Removed %s from favorites.\n", *locationID)
	default:
		fmt.Fprintf(stdout, "Favorite state: %s\n", state)
	}
	return nil
}

func runComment(ctx context.Context, args []string) error {
	fs, g := newFlagSet("comment")
	email := fs.String("email", "", "account email")
	locationID := fs.String("location", "", "location id")
	text := fs.String("text", "", "comment text")
	if err := parse(fs, args, "email", "location", "text"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if _, _, err := a.signIn(ctx, *email); err != nil {
		return err
	}
	defer a.repo.Accounts.SignOut()

	c, err := call(ctx, a, func(ctx context.Context) (model.Comment, error) {
		return a.repo.Comments.Add(ctx, *locationID, *text)
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Comment %s added.\n", c.ID)
	return nil
}

func runUncomment(ctx context.Context, args []string) error {
	fs, g := newFlagSet("uncomment")
	email := fs.String("email", "", "account email")
	commentID := fs.String("id", "", "comment id")
	if err := parse(fs, args, "email", "id"); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	if _, _, err := a.signIn(ctx, *email); err != nil {
		return err
	}
	defer a.repo.Accounts.SignOut()

	if err := exec(ctx, a, func(ctx context.Context) error {
		return a.repo.Comments.Remove(ctx, *commentID)
	}); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "Comment %s removed.\n", *commentID)
	return nil
}

// --- Watch -------------------------------------------------------------------

// runWatch keeps the reference collections fresh and prints every change
// until interrupted. Reports reach the terminal through the loop, the same
// path one-shot commands use.
func runWatch(ctx context.Context, args []string) error {
	fs, g := newFlagSet("watch")
	interval := fs.Duration("interval", 0, "refresh interval (defaults to refresh_interval from the config)")
	if err := parse(fs, args); err != nil {
		return err
	}
	a, err := openApp(ctx, g)
	if err != nil {
		return err
	}
	defer a.close()

	every := a.cfg.RefreshInterval
	if *interval != 0 {
		every = *interval
	}

	refresher := syncp.NewRefresher(a.repo, every, a.logger)
	refresher.Notify = func(stats syncp.RefreshStats, err error) {
		if a.scope.Closed() {
			return
		}
		a.loop.Post(func() { printRefresh(stdout, time.Now(), stats, err) })
	}

	loopCtx, stopLoop := context.WithCancel(ctx)
	defer stopLoop()
	done := make(chan error, 1)
	go func() {
		done <- refresher.Run(ctx)
		stopLoop()
	}()

	a.logger.Info("watching", "interval", every)
	_ = a.loop.Run(loopCtx)
	a.loop.Drain()

	err = <-done
	switch {
	case errors.Is(err, syncp.ErrRefreshDisabled):
		return fmt.Errorf("%w: set refresh_interval in the config or pass --interval", err)
	case errors.Is(err, context.Canceled):
		return nil
	}
	return err
}

// --- Output ------------------------------------------------------------------

func printLocations(w io.Writer, locs []model.Location, lang string) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCATEGORY\tPOSITION")
	for _, l := range locs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%.4f, %.4f\n", l.ID, l.LocalizedName(lang), l.CategoryID, l.Latitude, l.Longitude)
	}
	_ = tw.Flush()
}

func printComments(w io.Writer, comments []model.Comment) {
	if len(comments) == 0 {
		fmt.Fprintln(w, "No comments yet.")
		return
	}
	for _, c := range comments {
		fmt.Fprintf(w, "[%s] %s by %s (id %s)\n  %s\n",
			c.CreatedAt.Local().Format(time.DateTime), c.LocationID, c.UserID, c.ID, c.Text)
	}
}

func printRefresh(w io.Writer, at time.Time, stats syncp.RefreshStats, err error) {
	stamp := at.Format(time.TimeOnly)
	if err != nil {
		fmt.Fprintf(w, "%s  refresh failed: %v\n", stamp, err)
		return
	}
	fmt.Fprintf(w, "%s  %d locations, %d categories (+%d ~%d -%d)\n",
		stamp, stats.Locations, stats.Categories, stats.Added, stats.Changed, stats.Removed)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
