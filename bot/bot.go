package bot

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/onnwee/trivia-tender/irc"
	"github.com/onnwee/trivia-tender/telemetry"
	"github.com/onnwee/trivia-tender/leaderboard"
	"github.com/onnwee/trivia-tender/llm"
	"github.com/onnwee/trivia-tender/trivia"
)

// Sayer delivers replies to a channel. *irc.Conn satisfies it.
type Sayer interface {
	Say(channel, text string)
}

// Bot owns the command table and routes inbound chat to the trivia engine,
// the leaderboard, and the chat API.
type Bot struct {
	say    Sayer
	engine *trivia.Engine
	board  *leaderboard.Board
	llm    *llm.Client
	router *Router
}

// New assembles the command table. llmc may be nil, in which case !ask,
// !chat, and the curly-brace trigger answer with an unavailability notice.
func New(say Sayer, engine *trivia.Engine, board *leaderboard.Board, llmc *llm.Client, router *Router) *Bot {
	b := &Bot{say: say, engine: engine, board: board, llm: llmc, router: router}
	b.register()
	return b
}

// register lays out the command table. Order matters: exact commands that a
// prefix would shadow come first, and "!trivia auto" precedes "!trivia".
func (b *Bot) register() {
	r := b.router
	r.exact("!trivia-help", "trivia-help", b.cmdHelp)
	r.exact("!giveup", "giveup", b.cmdGiveUp)
	r.exact("!end trivia", "end-trivia", b.cmdEndTrivia)
	r.prefixed("!trivia auto", "trivia-auto", b.cmdTriviaAuto)
	r.prefixed("!trivia", "trivia", b.cmdTrivia)
	r.prefixed("!answer", "answer", b.cmdAnswer)
	r.prefixed("!ask", "ask", b.cmdAsk)
	r.prefixed("!chat", "chat", b.cmdAsk)
	r.exact("!leaderboard", "leaderboard", b.cmdLeaderboard)
	r.exact("!top", "leaderboard", b.cmdLeaderboard)
	r.prefixed("!stats", "stats", b.cmdStats)
	r.prefixed("!rank", "rank", b.cmdRank)
	r.exact("!streaks", "streaks", b.cmdStreaks)
	r.exact("!summary", "summary", b.cmdSummary)
	r.fallback = b.curlyFallback
}

// HandleMessage is the irc.Conn inbound callback. Each line gets its own
// correlation id so handler logs can be tied back to the triggering message.
func (b *Bot) HandleMessage(msg irc.Message) {
	if msg.Kind != irc.KindPrivMsg {
		return
	}
	ctx := telemetry.WithCorrelation(context.Background(), uuid.New().String())
	reply := b.router.Dispatch(ctx, msg.Channel, msg.Sender, msg.Body)
	if reply != "" {
		b.say.Say(msg.Channel, reply)
	}
}

// firstToken splits args into its first word and the remainder.
func firstToken(args string) (string, string) {
	args = strings.TrimSpace(args)
	if args == "" {
		return "", ""
	}
	if i := strings.IndexByte(args, ' '); i >= 0 {
		return args[:i], strings.TrimSpace(args[i+1:])
	}
	return args, ""
}

func (b *Bot) cmdHelp(ctx context.Context, ev *Event) string {
	return b.engine.Help()
}

func (b *Bot) cmdGiveUp(ctx context.Context, ev *Event) string {
	return b.engine.GiveUp(ev.Channel)
}

func (b *Bot) cmdEndTrivia(ctx context.Context, ev *Event) string {
	return b.engine.End(ev.Channel)
}

func (b *Bot) cmdTrivia(ctx context.Context, ev *Event) string {
	source, _ := firstToken(ev.Args)
	return b.engine.Start(ctx, ev.Channel, source, false)
}

func (b *Bot) cmdTriviaAuto(ctx context.Context, ev *Event) string {
	source, _ := firstToken(ev.Args)
	return b.engine.Start(ctx, ev.Channel, source, true)
}

func (b *Bot) cmdAnswer(ctx context.Context, ev *Event) string {
	if ev.Args == "" {
		return "❌ Please provide an answer after !answer"
	}
	return b.engine.Answer(ctx, ev.Channel, ev.User, ev.Args)
}

func (b *Bot) cmdAsk(ctx context.Context, ev *Event) string {
	if ev.Args == "" {
		return "❌ Please provide a question after !ask"
	}
	return b.forward(ctx, ev.User, ev.Args)
}

func (b *Bot) cmdLeaderboard(ctx context.Context, ev *Event) string {
	return b.board.Top(ctx, ev.Channel)
}

func (b *Bot) cmdStats(ctx context.Context, ev *Event) string {
	user, _ := firstToken(ev.Args)
	if user == "" {
		user = ev.User
	}
	return b.board.Stats(ctx, ev.Channel, strings.TrimPrefix(user, "@"))
}

func (b *Bot) cmdRank(ctx context.Context, ev *Event) string {
	user, _ := firstToken(ev.Args)
	if user == "" {
		user = ev.User
	}
	return b.board.Rank(ctx, ev.Channel, strings.TrimPrefix(user, "@"))
}

func (b *Bot) cmdStreaks(ctx context.Context, ev *Event) string {
	return b.board.Streaks(ctx, ev.Channel)
}

func (b *Bot) cmdSummary(ctx context.Context, ev *Event) string {
	return b.board.Summary(ctx, ev.Channel)
}

// curlyRe recognizes the {wrapped text} trigger anywhere in a message.
var curlyRe = regexp.MustCompile(`\{([^{}]+)\}`)

// curlyFallback forwards {wrapped} text to the chat API. Anything else is
// dropped silently.
func (b *Bot) curlyFallback(ctx context.Context, ev *Event) string {
	m := curlyRe.FindStringSubmatch(ev.Args)
	if m == nil {
		return ""
	}
	question := strings.TrimSpace(m[1])
	if question == "" {
		return ""
	}
	return b.forward(ctx, ev.User, question)
}

// forward asks the chat API and formats the reply for the asking user.
func (b *Bot) forward(ctx context.Context, user, question string) string {
	if b.llm == nil {
		return fmt.Sprintf("@%s ❌ Chat responses are not available right now.", user)
	}
	resp, err := b.llm.Ask(ctx, question)
	if err != nil {
		return fmt.Sprintf("@%s ❌ Failed to get a response. Try again later.", user)
	}
	return fmt.Sprintf("@%s %s", user, resp)
}
