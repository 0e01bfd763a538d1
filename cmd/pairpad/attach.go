package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/chzyer/readline"
	"github.com/spf13/cobra"

	"github.com/michaelbrown/pairpad/internal/client"
	"github.com/michaelbrown/pairpad/internal/session"
)

var serverFlag string

var attachCmd = &cobra.Command{
	Use:   "attach [session-id]",
	Short: "Join a session from the terminal",
	Long: `Join a collaborative session as a terminal participant.

Every line you type is appended to the shared buffer. Changes made by other
participants are shown as they arrive. Without a session id a new session is
created.

Examples:
  pairpad attach
  pairpad attach 3f2a9c1e-... --server http://pad.local:3000`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAttach,
}

func init() {
	attachCmd.Flags().StringVar(&serverFlag, "server", "http://localhost:3000", "Server base URL")
	rootCmd.AddCommand(attachCmd)
}

// terminalEditor prints the buffer whenever someone else replaces it.
type terminalEditor struct {
	mu  sync.Mutex
	out io.Writer
}

func (e *terminalEditor) SetContent(text string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, "\033[90m── buffer updated ──\033[0m\n%s\n", numbered(text))
}

func (e *terminalEditor) println(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fmt.Fprintf(e.out, format+"\n", args...)
}

func runAttach(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	log := newLogger(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sessionID := ""
	if len(args) == 1 {
		sessionID = args[0]
	} else {
		sessionID, err = createSession(ctx, serverFlag)
		if err != nil {
			return err
		}
		fmt.Printf("Created session %s\n", sessionID)
	}

	wsURL, err := client.WebSocketURL(serverFlag)
	if err != nil {
		return err
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "\033[36mpad>\033[0m ",
		HistoryFile:     filepath.Join(os.TempDir(), "pairpad_history"),
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return fmt.Errorf("readline: %w", err)
	}
	defer rl.Close()

	editor := &terminalEditor{out: rl.Stdout()}
	c, err := client.Dial(ctx, wsURL, sessionID, editor, client.Options{
		Log: log,
		OnOutput: func(out string) {
			editor.println("\033[32m── output ──\033[0m\n%s", out)
		},
		OnLanguage: func(l session.Language) {
			editor.println("\033[33mlanguage: %s\033[0m", l)
		},
		OnConnection: func(up bool) {
			if !up {
				editor.println("\033[31mdisconnected\033[0m")
			}
		},
	})
	if errors.Is(err, client.ErrSessionNotFound) {
		return fmt.Errorf("session %s not found", sessionID)
	}
	if err != nil {
		return err
	}
	defer c.Close()

	snap := c.Snapshot()
	fmt.Printf("pairpad - session %s (%s)\n", snap.ID, snap.Language)
	fmt.Printf("Type /help for commands, /quit to exit\n\n")

	// Ctrl+C cancels an active run, not the whole session.
	var runMu sync.Mutex
	var runCancel context.CancelFunc
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			runMu.Lock()
			if runCancel != nil {
				runCancel()
			}
			runMu.Unlock()
		}
	}()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt || err == io.EOF {
				fmt.Println("Goodbye!")
				return nil
			}
			return err
		}

		select {
		case <-c.Done():
			return errors.New("connection closed")
		default:
		}

		if strings.HasPrefix(strings.TrimSpace(line), "/") {
			quit, err := handleCommand(c, editor, strings.TrimSpace(line), func(cancel context.CancelFunc) {
				runMu.Lock()
				runCancel = cancel
				runMu.Unlock()
			})
			if err != nil {
				editor.println("\033[31merror: %v\033[0m", err)
			}
			if quit {
				return nil
			}
			continue
		}

		code := c.Snapshot().Code
		if code != "" {
			code += "\n"
		}
		if err := c.LocalEdit(code + line); err != nil {
			editor.println("\033[31merror: %v\033[0m", err)
		}
	}
}

func handleCommand(c *client.Client, editor *terminalEditor, input string, track func(context.CancelFunc)) (bool, error) {
	fields := strings.Fields(input)
	switch fields[0] {
	case "/quit", "/exit":
		return true, nil

	case "/help":
		editor.println(`Commands:
  /run             run the buffer and share the output
  /lang <language> switch language (javascript, python)
  /show            print the buffer, language and last output
  /clear           empty the buffer
  /quit            leave the session`)

	case "/run":
		ctx, cancel := context.WithCancel(context.Background())
		track(cancel)
		defer func() {
			track(nil)
			cancel()
		}()
		res, err := c.Run(ctx)
		if err != nil {
			return false, err
		}
		status := "\033[32m── output ──\033[0m"
		if res.Failed {
			status = "\033[31m── failed ──\033[0m"
		}
		editor.println("%s (%dms)\n%s", status, res.DurationMS, res.Output)

	case "/lang":
		if len(fields) != 2 {
			return false, errors.New("usage: /lang <javascript|python>")
		}
		lang, err := session.ParseLanguage(fields[1])
		if err != nil {
			return false, err
		}
		return false, c.SetLanguage(lang)

	case "/show":
		snap := c.Snapshot()
		editor.println("\033[33mlanguage: %s\033[0m\n%s", snap.Language, numbered(snap.Code))
		if snap.Output != "" {
			editor.println("\033[32m── output ──\033[0m\n%s", snap.Output)
		}

	case "/clear":
		return false, c.LocalEdit("")

	default:
		return false, fmt.Errorf("unknown command %s (try /help)", fields[0])
	}
	return false, nil
}

// createSession asks the server for a new session and returns its id.
func createSession(ctx context.Context, base string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(base, "/")+"/api/session", nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("creating session: server returned %s", resp.Status)
	}
	var sess session.Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return "", fmt.Errorf("creating session: %w", err)
	}
	return sess.ID, nil
}

func numbered(code string) string {
	if code == "" {
		return "\033[90m(empty)\033[0m"
	}
	lines := strings.Split(code, "\n")
	var b strings.Builder
	for i, l := range lines {
		fmt.Fprintf(&b, "\033[90m%3d│\033[0m %s", i+1, l)
		if i < len(lines)-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}
