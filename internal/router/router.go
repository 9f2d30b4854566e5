// Package router classifies chat messages and dispatches them to the help,
// generation or parametric-part handler.
package router

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/text/cases"

	"github.com/genx3d/genx3d/internal/model"
	"github.com/genx3d/genx3d/internal/parts"
)

// Intent is the handler a message is routed to.
type Intent string

const (
	IntentHelp      Intent = "help"
	IntentGenerate  Intent = "generate"
	IntentCreateCAD Intent = "create_cad"
)

// Agent names reported to clients.
const (
	AgentHelp     = "HelpBot"
	AgentGenerate = "GenBot"
	AgentCAD      = "CADBot"
)

const classifyPrompt = `You are a router. Given this user message: %q,
decide whether the user needs:
- help (if they are asking for guidance or have a question),
- generate (if they want a new 3D part generated from a description),
- create_cad (if they ask for a simple box, cylinder or flange with explicit dimensions).

Only answer with one word: help, generate, or create_cad.`

const helpPrompt = `You are HelpBot, a helpful assistant for CAD and technical questions about this 3D model generator. Answer the following user question as helpfully as possible, in a few short paragraphs.

User: %s

Assistant:`

// StaticHelp is returned when the LLM cannot answer a help request.
const StaticHelp = `I can turn descriptions into 3D models. Try:
- "generate a bracket with two mounting holes" to have code written and run for you
- "create a box 20 x 10 x 5", "a cylinder with radius 5 and height 20" or
  "a flange outer diameter 100 inner diameter 50 thickness 10" for exact parametric parts
Models are exported as STEP files you can download or view in the browser.`

// Completer is the LLM collaborator.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

// Generator runs the code-generation pipeline.
type Generator interface {
	Generate(ctx context.Context, request string) model.GenerationResult
}

// PartResult is the outcome of a parametric part build.
type PartResult struct {
	Spec  parts.Spec           `json:"spec"`
	Model model.GeneratedModel `json:"model"`
}

// Response is the routed answer to one message.
type Response struct {
	Intent     Intent                  `json:"intent"`
	Agent      string                  `json:"agent"`
	Message    string                  `json:"message"`
	ModelURL   string                  `json:"model_url,omitempty"`
	Generation *model.GenerationResult `json:"generation,omitempty"`
	Part       *PartResult             `json:"part,omitempty"`
}

// Router is safe for concurrent use.
type Router struct {
	llm    Completer
	gen    Generator
	store  parts.Store
	format string
}

// New creates a Router. format is the export format for parametric parts.
func New(llm Completer, gen Generator, store parts.Store, format string) *Router {
	return &Router{llm: llm, gen: gen, store: store, format: format}
}

// Handle classifies message and runs the matching handler. It never fails;
// handler errors are reported in the response message.
func (r *Router) Handle(ctx context.Context, message string) Response {
	message = strings.TrimSpace(message)
	intent := r.Classify(ctx, message)
	zap.L().Info("router: message classified", zap.String("intent", string(intent)))

	switch intent {
	case IntentGenerate:
		return r.generate(ctx, message)
	case IntentCreateCAD:
		return r.createCAD(ctx, message)
	default:
		return r.help(ctx, message)
	}
}

// Classify asks the LLM for an intent, falling back to keywords when the LLM
// fails or answers with something else.
func (r *Router) Classify(ctx context.Context, message string) Intent {
	if message == "" {
		return IntentHelp
	}
	if r.llm != nil {
		out, err := r.llm.Complete(ctx, fmt.Sprintf(classifyPrompt, message))
		if err == nil {
			if intent, ok := parseIntent(out); ok {
				return intent
			}
			zap.L().Debug("router: unrecognised classifier output", zap.String("output", out))
		} else {
			zap.L().Warn("router: classifier unavailable, using keywords", zap.Error(err))
		}
	}
	return KeywordIntent(message)
}

// parseIntent accepts the bare label, tolerating case, quotes and trailing
// punctuation.
func parseIntent(out string) (Intent, bool) {
	word := strings.Trim(strings.ToLower(strings.TrimSpace(out)), "\"'`.!")
	switch Intent(word) {
	case IntentHelp, IntentGenerate, IntentCreateCAD:
		return Intent(word), true
	}
	return "", false
}

var generateCues = []string{"generate", "create", "make", "design", "build", "draw", "bracket", "gear"}

// KeywordIntent classifies without an LLM. A named parametric shape with a
// number routes to create_cad, questions route to help, and generation verbs
// or shape nouns route to generate.
func KeywordIntent(message string) Intent {
	lower := strings.TrimSpace(cases.Fold().String(message))
	switch {
	case lower == "":
		return IntentHelp
	case parts.DetectKind(lower) != "" && strings.ContainsAny(lower, "0123456789"):
		return IntentCreateCAD
	case strings.HasSuffix(lower, "?"):
		return IntentHelp
	case containsAny(lower, generateCues), parts.DetectKind(lower) != "":
		return IntentGenerate
	default:
		return IntentHelp
	}
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

func (r *Router) help(ctx context.Context, message string) Response {
	resp := Response{Intent: IntentHelp, Agent: AgentHelp, Message: StaticHelp}
	if r.llm == nil || message == "" {
		return resp
	}
	out, err := r.llm.Complete(ctx, fmt.Sprintf(helpPrompt, message))
	if err != nil || strings.TrimSpace(out) == "" {
		zap.L().Warn("router: help answer unavailable, using static help", zap.Error(err))
		return resp
	}
	resp.Message = strings.TrimSpace(out)
	return resp
}

func (r *Router) generate(ctx context.Context, message string) Response {
	res := r.gen.Generate(ctx, message)
	resp := Response{Intent: IntentGenerate, Agent: AgentGenerate, Generation: &res}
	if res.Success {
		resp.ModelURL = res.ModelURL
		resp.Message = fmt.Sprintf("Generated a model for %q in %s.", message, attemptsText(res.Attempts))
	} else {
		resp.Message = fmt.Sprintf("Could not generate a model for %q: %s. Last error: %s", message, res.ErrorMessage, res.LastError)
	}
	return resp
}

func (r *Router) createCAD(ctx context.Context, message string) Response {
	spec, err := parts.ParseRequest(message)
	if err != nil {
		if parts.DetectKind(message) == "" {
			// Not a parametric shape after all; let the pipeline try.
			return r.generate(ctx, message)
		}
		return Response{Intent: IntentCreateCAD, Agent: AgentCAD, Message: "Could not build that part: " + partError(err)}
	}
	m, err := parts.Export(spec, r.store, r.format)
	if err != nil {
		zap.L().Error("router: part export failed", zap.String("spec", spec.Describe()), zap.Error(err))
		return Response{Intent: IntentCreateCAD, Agent: AgentCAD, Message: "Could not build that part: " + partError(err)}
	}
	return Response{
		Intent:   IntentCreateCAD,
		Agent:    AgentCAD,
		Message:  "Created " + spec.Describe() + ".",
		ModelURL: m.URL,
		Part:     &PartResult{Spec: spec, Model: m},
	}
}

// partError strips the wrapping prefix from validation errors.
func partError(err error) string {
	msg := err.Error()
	if errors.Is(err, parts.ErrInvalid) {
		if i := strings.Index(msg, ": "+parts.ErrInvalid.Error()); i >= 0 {
			return msg[:i]
		}
	}
	return msg
}

func attemptsText(n int) string {
	if n == 1 {
		return "1 attempt"
	}
	return fmt.Sprintf("%d attempts", n)
}
