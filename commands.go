package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/tenxcards/tenxcards-go/internal/fakeapi"
	"github.com/tenxcards/tenxcards-go/internal/handler"
	"github.com/tenxcards/tenxcards-go/internal/logging"
	"github.com/tenxcards/tenxcards-go/internal/model"
)

const shutdownTimeout = 10 * time.Second

var errNotLoggedIn = errors.New("not logged in, run `tenxcards login` first")

func newFlagSet(name string, a *app) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.stdout)
	return fs
}

func pageFlags(fs *flag.FlagSet) func() model.PageParams {
	page := fs.Int("page", -1, "0-based page number")
	size := fs.Int("size", -1, "page size")
	sort := fs.String("sort", "", "sort, e.g. createdAt,desc")
	return func() model.PageParams {
		p := model.PageParams{Sort: *sort}
		if *page >= 0 {
			p.Page = page
		}
		if *size >= 0 {
			p.Size = size
		}
		return p
	}
}

// readSecret takes the flag value or, when empty, the first line of stdin.
func (a *app) readSecret(value, prompt string) (string, error) {
	if value != "" {
		return value, nil
	}
	fmt.Fprint(a.stdout, prompt)
	line, err := bufio.NewReader(a.stdin).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("failed to read %s: %w", strings.TrimSuffix(prompt, ": "), err)
	}
	fmt.Fprintln(a.stdout)
	return strings.TrimRight(line, "\r\n"), nil
}

// requireSession fails early when no token pair is stored.
func (a *app) requireSession(ctx context.Context) error {
	if !a.tokens.HasBoth(ctx) {
		return errNotLoggedIn
	}
	return nil
}

func runLogin(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("login", a)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := a.readSecret(*password, "Password: ")
	if err != nil {
		return err
	}
	if err := a.session.Login(ctx, model.LoginRequest{Email: strings.TrimSpace(*email), Password: secret}); err != nil {
		return err
	}
	return printIdentity(a.stdout, a.session.State())
}

func runRegister(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("register", a)
	email := fs.String("email", "", "account email")
	password := fs.String("password", "", "password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	secret, err := a.readSecret(*password, "Password: ")
	if err != nil {
		return err
	}
	if err := a.session.Register(ctx, model.RegisterRequest{Email: strings.TrimSpace(*email), Password: secret}); err != nil {
		return err
	}
	return printIdentity(a.stdout, a.session.State())
}

func runLogout(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("logout", a).Parse(args); err != nil {
		return err
	}
	a.session.Logout(ctx)
	fmt.Fprintln(a.stdout, "Logged out.")
	return nil
}

func runWhoami(ctx context.Context, a *app, args []string) error {
	if err := newFlagSet("whoami", a).Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}
	if err := a.session.ReloadUser(ctx); err != nil {
		return err
	}
	return printIdentity(a.stdout, a.session.State())
}

func runDecks(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("decks", a)
	params := pageFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	page, err := a.decks.List(ctx, params())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME\tCARDS\tUPDATED")
	for _, d := range page.Content {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", d.ID, d.Name, d.FlashcardCount, d.UpdatedAt.Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPage(a.stdout, page.Page)
	return nil
}

func runDeckCreate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("deck-create", a)
	name := fs.String("name", "", "deck name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	deck, err := a.decks.Create(ctx, model.CreateDeckRequest{Name: *name})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Created deck %q (%s)\n", deck.Name, deck.ID)
	return nil
}

func runCards(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("cards", a)
	deckID := fs.String("deck", "", "deck id")
	source := fs.String("source", "", "filter by source: manual, ai or ai-edited")
	params := pageFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	page, err := a.cards.ListInDeck(ctx, *deckID, model.FlashcardListParams{
		PageParams: params(),
		Source:     model.FlashcardSource(*source),
	})
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSOURCE\tFRONT\tBACK")
	for _, c := range page.Content {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.ID, c.Source, oneLine(c.Front), oneLine(c.Back))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPage(a.stdout, page.Page)
	return nil
}

func runStudy(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("study", a)
	deckID := fs.String("deck", "", "deck id")
	shuffle := fs.Bool("shuffle", true, "shuffle cards")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	session, err := a.decks.StudySession(ctx, *deckID, *shuffle)
	if err != nil {
		return err
	}
	if session.TotalCards == 0 {
		fmt.Fprintf(a.stdout, "Deck %q has no cards yet.\n", session.DeckName)
		return nil
	}

	in := bufio.NewScanner(a.stdin)
	fmt.Fprintf(a.stdout, "Studying %q: %d cards. Press Enter to reveal, q to quit.\n", session.DeckName, session.TotalCards)
	for i, card := range session.Flashcards {
		fmt.Fprintf(a.stdout, "\n[%d/%d] %s\n", i+1, session.TotalCards, card.Front)
		if !in.Scan() || strings.TrimSpace(in.Text()) == "q" {
			return nil
		}
		fmt.Fprintf(a.stdout, "  -> %s\n", card.Back)
	}
	fmt.Fprintln(a.stdout, "\nDone.")
	return nil
}

func runGenerate(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("generate", a)
	deckID := fs.String("deck", "", "target deck id")
	file := fs.String("file", "-", "source text file, - for stdin")
	count := fs.Int("count", model.DefaultRequestedCandidates, "number of candidates to request")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	text, err := a.readSource(*file)
	if err != nil {
		return err
	}

	gen, err := a.ai.Generate(ctx, model.GenerateFlashcardsRequest{
		DeckID:                   *deckID,
		SourceText:               text,
		RequestedCandidatesCount: *count,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(a.stdout, "Generation %s (%s): %d candidates\n", gen.ID, gen.AIModel, gen.GeneratedCandidatesCount)
	printCandidates(a.stdout, gen.Candidates)

	// Usage counters changed on the server.
	if err := a.session.ReloadUser(ctx); err != nil {
		a.log.Warn("failed to reload user", "error", err)
		return nil
	}
	if u := a.session.State().User; u != nil {
		fmt.Fprintf(a.stdout, "AI usage this month: %d/%d\n", u.AIUsageInCurrentMonth, u.MonthlyAILimit)
	}
	return nil
}

func runGenerations(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("generations", a)
	params := pageFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	page, err := a.ai.ListGenerations(ctx, params())
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tDECK\tMODEL\tCANDIDATES\tCREATED")
	for _, g := range page.Content {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\n", g.ID, g.DeckID, g.AIModel, g.GeneratedCandidatesCount, g.CreatedAt.Format(time.DateTime))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	printPage(a.stdout, page.Page)
	return nil
}

// runAccept accepts pending candidates (all, or the listed ones) and saves
// every accepted or edited candidate as a flashcard.
func runAccept(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("accept", a)
	generationID := fs.String("generation", "", "generation id")
	only := fs.String("only", "", "comma separated candidate ids; default all pending")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := a.requireSession(ctx); err != nil {
		return err
	}

	gen, err := a.ai.GetGeneration(ctx, *generationID)
	if err != nil {
		return err
	}

	wanted := make(map[string]bool)
	for _, id := range strings.Split(*only, ",") {
		if id = strings.TrimSpace(id); id != "" {
			wanted[id] = true
		}
	}

	var updates []model.CandidateUpdate
	for _, c := range gen.Candidates {
		if c.Status != model.CandidatePending {
			continue
		}
		if len(wanted) > 0 && !wanted[c.ID] {
			continue
		}
		updates = append(updates, model.CandidateUpdate{ID: c.ID, Status: model.CandidateAccepted})
	}

	if len(updates) > 0 {
		if _, err := a.ai.UpdateCandidates(ctx, gen.ID, model.UpdateCandidatesRequest{Candidates: updates}); err != nil {
			return err
		}
	}

	saved, err := a.ai.SaveCandidates(ctx, gen.ID)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "Saved %d flashcards to deck %s\n", saved.SavedCount, gen.DeckID)
	return nil
}

func runResetPassword(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("reset-password", a)
	email := fs.String("email", "", "request a reset link for this email")
	token := fs.String("token", "", "reset token from the email")
	password := fs.String("password", "", "new password (read from stdin when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	var (
		resp *model.MessageResponse
		err  error
	)
	switch {
	case *token != "":
		secret, readErr := a.readSecret(*password, "New password: ")
		if readErr != nil {
			return readErr
		}
		resp, err = a.session.ConfirmPasswordReset(ctx, model.PasswordResetConfirm{Token: *token, NewPassword: secret})
	case *email != "":
		resp, err = a.session.RequestPasswordReset(ctx, model.PasswordResetRequest{Email: strings.TrimSpace(*email)})
	default:
		return errors.New("either -email or -token is required")
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(a.stdout, resp.Message)
	return nil
}

func runServe(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("serve", a)
	addr := fs.String("addr", a.cfg.Gateway.Addr, "listen address")
	if err := fs.Parse(args); err != nil {
		return err
	}

	a.session.Restore(ctx)

	gin.SetMode(gin.ReleaseMode)
	router := handler.NewRouter(handler.RouterConfig{
		Session:     a.session,
		API:         a.authed,
		Metrics:     a.metrics,
		Logger:      a.log,
		CORSOrigins: a.cfg.Gateway.CORSOrigins,
	})

	a.log.Info("gateway listening", "addr", *addr, "api", a.cfg.API.BaseURL, "authenticated", a.session.IsAuthenticated())
	return serveHTTP(ctx, &http.Server{Addr: *addr, Handler: router, ReadHeaderTimeout: 10 * time.Second})
}

func runFakeAPI(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("fake-api", a)
	addr := fs.String("addr", "127.0.0.1:8080", "listen address")
	accessTTL := fs.Duration("access-ttl", 15*time.Minute, "access token lifetime")
	if err := fs.Parse(args); err != nil {
		return err
	}

	gin.SetMode(gin.ReleaseMode)
	api := fakeapi.New(fakeapi.Options{AccessTTL: *accessTTL, Logger: a.log})

	a.log.Info("fake 10xCards API listening", "addr", *addr, "base", "http://"+*addr+"/api")
	return serveHTTP(ctx, &http.Server{Addr: *addr, Handler: api.Handler(), ReadHeaderTimeout: 10 * time.Second})
}

func serveHTTP(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.FromContext(ctx).Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}

func (a *app) readSource(path string) (string, error) {
	var (
		raw []byte
		err error
	)
	if path == "-" {
		raw, err = io.ReadAll(a.stdin)
	} else {
		raw, err = os.ReadFile(path)
	}
	if err != nil {
		return "", fmt.Errorf("failed to read source text: %w", err)
	}
	return string(raw), nil
}

func printIdentity(w io.Writer, state model.SessionState) error {
	if state.User == nil {
		return errNotLoggedIn
	}
	u := state.User
	fmt.Fprintf(w, "Logged in as %s (%s)\n", u.Email, u.Role)
	fmt.Fprintf(w, "AI usage this month: %d/%d\n", u.AIUsageInCurrentMonth, u.MonthlyAILimit)
	if state.Tokens != nil {
		if exp, ok := state.Tokens.AccessExpiry(); ok {
			fmt.Fprintf(w, "Access token valid until %s\n", exp.Local().Format(time.DateTime))
		}
	}
	return nil
}

func printCandidates(w io.Writer, candidates []model.Candidate) {
	for i, c := range candidates {
		fmt.Fprintf(w, "%2d. [%s] %s\n    %s\n    id: %s\n", i+1, c.Status, oneLine(c.Front), oneLine(c.Back), c.ID)
	}
}

func printPage(w io.Writer, p model.PageInfo) {
	fmt.Fprintf(w, "page %d/%d, %d total\n", p.Number+1, max(p.TotalPages, 1), p.TotalElements)
}

func oneLine(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > 60 {
		return string(r[:57]) + "..."
	}
	return s
}
