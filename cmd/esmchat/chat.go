package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/yunseo-dev/esmchat/internal/chat"
	"github.com/yunseo-dev/esmchat/internal/client"
	"github.com/yunseo-dev/esmchat/internal/config"
	"github.com/yunseo-dev/esmchat/internal/engine"
	"github.com/yunseo-dev/esmchat/internal/history"
	"github.com/yunseo-dev/esmchat/internal/prompts"
	"github.com/yunseo-dev/esmchat/internal/protocol"
)

var (
	promptStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("62"))
	assistantStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("255"))
	noticeStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("243")).Italic(true)
	optionStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("212")).Bold(true)
	sourceStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("135"))
	errorStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive chat session",
	Long: `Start an interactive chat with the assistant server.

Slash commands inside the chat:
  /new            Start a fresh session
  /sessions       List cached sessions
  /open <id>      Switch to a session and load its history
  /search <q>     Full-text search across cached transcripts
  /quit           Exit

Press Ctrl+C while an answer is streaming to cancel it; the partial
answer stays in the transcript.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runChat(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(chatCmd)
}

// session ties together the engine, the local history mirror, and the
// terminal renderer for one chat run.
type session struct {
	engine *engine.Engine
	api    *client.Client
	cache  *history.Cache
	search *history.SearchIndex
	events chan engine.Event

	// Options printed after the last assistant message, selectable by number.
	pendingOptions []chat.IntentOption
}

func runChat(ctx context.Context) error {
	manager, cfg, err := loadSetup()
	if err != nil {
		return err
	}

	set := prompts.Default()
	if cfg.PromptsFile != "" {
		set, err = prompts.Load(cfg.PromptsFile)
		if err != nil {
			return err
		}
	}

	dbPath, indexPath, err := ensureDataDir(manager)
	if err != nil {
		return err
	}
	cache, err := history.Open(ctx, dbPath)
	if err != nil {
		return err
	}
	defer cache.Close()
	search, err := history.OpenSearchIndex(indexPath)
	if err != nil {
		return err
	}
	defer search.Close()

	api := client.New(cfg.ServerURL, cfg.Timeout())

	events := make(chan engine.Event, 256)
	s := &session{
		api:    api,
		cache:  cache,
		search: search,
		events: events,
	}
	s.engine = engine.New(api, engine.Options{
		ModuleType: cfg.ModuleType,
		FirstName:  cfg.FirstName,
		Prompts:    set,
		Hooks:      engine.ChanHook{Ch: events},
	})
	s.engine.Start()
	defer s.engine.Close()

	// Config edits take effect mid-session; only the server URL is safe to
	// swap while the engine is running.
	watcher, err := config.NewWatcher(manager, func(updated *config.Config) {
		api.SetBaseURL(updated.ServerURL)
	})
	if err == nil {
		if err := watcher.Start(); err != nil {
			log.Printf("config watcher not started: %v", err)
		} else {
			defer watcher.Stop()
		}
	}

	// Ctrl+C cancels the in-flight answer instead of killing the process.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			s.engine.Stop()
		}
	}()

	fmt.Println(noticeStyle.Render(fmt.Sprintf("Connected to %s (module: %s). /quit to exit.", cfg.ServerURL, cfg.ModuleType)))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for {
		fmt.Print(promptStyle.Render("you> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := s.runCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		if n, err := strconv.Atoi(line); err == nil && len(s.pendingOptions) > 0 {
			s.selectOption(n)
			s.waitTurnIfStarted()
			continue
		}

		if err := s.engine.Send(line); err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			continue
		}
		s.waitTurn(ctx)
	}
}

// runCommand handles one slash command; it reports whether to exit.
func (s *session) runCommand(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/new":
		id := s.engine.NewChat()
		s.pendingOptions = nil
		fmt.Println(noticeStyle.Render("started " + id))
	case "/sessions":
		metas, err := s.cache.Sessions(ctx)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		if len(metas) == 0 {
			fmt.Println(noticeStyle.Render("no cached sessions yet"))
			return false
		}
		for _, meta := range metas {
			title := meta.Title
			if title == "" {
				title = "(no title)"
			}
			fmt.Printf("%s  %s  %s\n",
				optionStyle.Render(meta.SessionID),
				noticeStyle.Render(meta.UpdatedAt.Format("2006-01-02 15:04")),
				title)
		}
	case "/open":
		if rest == "" {
			fmt.Println(errorStyle.Render("usage: /open <session-id>"))
			return false
		}
		s.pendingOptions = nil
		s.engine.OpenSession(rest)
		s.drainEvents()
	case "/search":
		if rest == "" {
			fmt.Println(errorStyle.Render("usage: /search <query>"))
			return false
		}
		hits, err := s.search.Search(rest, "", 10)
		if err != nil {
			fmt.Println(errorStyle.Render(err.Error()))
			return false
		}
		if len(hits) == 0 {
			fmt.Println(noticeStyle.Render("no matches"))
			return false
		}
		for _, hit := range hits {
			fmt.Printf("%s  %s: %s\n",
				optionStyle.Render(hit.SessionID),
				hit.Role,
				truncateLine(hit.Content, 100))
		}
	case "/stop":
		s.engine.Stop()
	default:
		fmt.Println(errorStyle.Render("unknown command " + cmd))
	}
	return false
}

// waitTurn renders events until the turn finishes, then refreshes the local
// history mirror.
func (s *session) waitTurn(ctx context.Context) {
	var streamed strings.Builder
	printed := false

	for ev := range s.events {
		switch ev.Kind {
		case "delta":
			delta, _ := ev.Data.(string)
			if !printed {
				fmt.Print(assistantStyle.Render("assistant> "))
				printed = true
			}
			fmt.Print(delta)
			streamed.WriteString(delta)
		case "intent_modal":
			s.renderModal(ev)
		case "firewall_modal":
			s.renderFirewallModal(ev)
		case "turn_finished":
			if printed {
				fmt.Println()
			}
			s.finishRender(streamed.String(), printed)
			s.refreshMirror(ctx)
			return
		}
	}
}

// waitTurnIfStarted waits for a turn that an option selection may have
// kicked off. Selections that only navigate start no turn, and the bus
// delivers asynchronously, so poll briefly before giving up.
func (s *session) waitTurnIfStarted() {
	for i := 0; i < 10; i++ {
		if s.engine.Loading() {
			s.waitTurn(context.Background())
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	s.drainEvents()
}

// finishRender prints whatever the streamed output did not cover: the done
// payload that replaced the partial text, a JSON intent answer, sources, and
// selectable options.
func (s *session) finishRender(streamed string, printed bool) {
	msgs := s.engine.Messages()
	var last *chat.Message
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Role == chat.RoleAssistant {
			last = &msgs[i]
			break
		}
	}
	if last == nil {
		return
	}

	if last.Content != streamed {
		if printed {
			fmt.Println(noticeStyle.Render("(final)"))
		}
		fmt.Println(assistantStyle.Render("assistant> ") + last.Content)
	}
	for _, src := range last.Sources {
		fmt.Println(sourceStyle.Render("  source: " + src.Title + " " + src.URL))
	}
	s.pendingOptions = nil
	if len(last.IntentOptions) > 0 {
		s.printOptions(last.IntentOptions)
	}
}

func (s *session) printOptions(options []chat.IntentOption) {
	s.pendingOptions = options
	for i, opt := range options {
		fmt.Printf("  %s %s\n", optionStyle.Render(fmt.Sprintf("[%d]", i+1)), opt.Title)
		if opt.Description != "" {
			fmt.Println(noticeStyle.Render("      " + opt.Description))
		}
	}
	fmt.Println(noticeStyle.Render("  type a number to choose"))
}

func (s *session) renderModal(ev engine.Event) {
	data, _ := ev.Data.(map[string]any)
	options, _ := data["options"].([]chat.IntentOption)
	if len(options) == 0 {
		return
	}
	fmt.Println(noticeStyle.Render("the assistant suggests these requests:"))
	s.printOptions(options)
}

func (s *session) renderFirewallModal(ev engine.Event) {
	templates, _ := ev.Data.([]protocol.FirewallTemplate)
	if len(templates) == 0 {
		return
	}
	fmt.Println(noticeStyle.Render("available firewall request templates:"))
	for _, tpl := range templates {
		fmt.Printf("  %s %s\n", optionStyle.Render(tpl.ID), tpl.Name)
	}
}

// selectOption acts on a numbered choice from the last printed option list.
func (s *session) selectOption(n int) {
	if n < 1 || n > len(s.pendingOptions) {
		fmt.Println(errorStyle.Render("no such option"))
		return
	}
	opt := s.pendingOptions[n-1]
	s.pendingOptions = nil

	tcode, _ := opt.ActionData["tcode"].(string)
	contents, _ := opt.ActionData["contents"].(string)

	switch opt.ActionType {
	case protocol.ActionLLMContinue:
		s.engine.Bus().PublishYesClicked(engine.IntentYesClicked{TCode: tcode, Contents: contents})
	case protocol.ActionRequestAuto:
		fmt.Println(noticeStyle.Render(fmt.Sprintf("opening request form for %s (%s)", tcode, contents)))
	case protocol.ActionNavigate:
		url, _ := opt.ActionData["url"].(string)
		fmt.Println(noticeStyle.Render("navigate to " + url))
	default:
		fmt.Println(noticeStyle.Render("selected " + opt.Title))
	}
}

// refreshMirror pushes the finished transcript into the sqlite cache and the
// search index.
func (s *session) refreshMirror(ctx context.Context) {
	sid := s.engine.ActiveSession()
	if sid == "" {
		return
	}
	msgs := s.engine.Messages()
	if err := s.cache.ReplaceSession(ctx, sid, msgs); err != nil {
		log.Printf("history cache refresh failed: %v", err)
	}
	if err := s.search.IndexMessages(sid, msgs); err != nil {
		log.Printf("search index refresh failed: %v", err)
	}
}

// drainEvents discards queued notifications after operations whose output is
// rendered synchronously (session switches, listings).
func (s *session) drainEvents() {
	for {
		select {
		case <-s.events:
		default:
			return
		}
	}
}

func truncateLine(s string, max int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-3]) + "..."
}
