package analysis

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"

	"labreport/internal/aggregate"
	"labreport/internal/logging"
	"labreport/internal/store"
	"labreport/internal/types"
)

const footerTimeLayout = "2006-01-02 15:04:05"

// slowAnalysis is the duration past which an Analyze call is logged as a warning.
const slowAnalysis = 2 * time.Minute

// ContextBuilder produces the aggregated report context for a subject.
type ContextBuilder interface {
	Aggregate(ctx context.Context, subj *types.Subject) (*aggregate.ReportContext, error)
}

// ResultSink persists analysis outcomes.
type ResultSink interface {
	SaveAnalysis(ctx context.Context, rec store.AnalysisRecord) error
}

type state int

const (
	stateInit state = iota
	stateResolve
	stateTier1
	stateTier2
	stateTier3
	stateDone
)

func (s state) String() string {
	switch s {
	case stateInit:
		return "INIT"
	case stateResolve:
		return "RESOLVE"
	case stateTier1:
		return "TIER_1"
	case stateTier2:
		return "TIER_2"
	case stateTier3:
		return "TIER_3"
	case stateDone:
		return "DONE"
	}
	return "UNKNOWN"
}

// Orchestrator runs the tiered analysis for one subject per call. It holds
// no per-call state and is safe for concurrent use.
type Orchestrator struct {
	resolver types.Resolver
	contexts ContextBuilder
	factory  StrategyFactory
	sink     ResultSink
	timeout  time.Duration
	now      func() time.Time
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithResultSink persists every result whose subject was resolved.
func WithResultSink(sink ResultSink) Option {
	return func(o *Orchestrator) { o.sink = sink }
}

// WithTimeout bounds each Analyze call.
func WithTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

// WithClock overrides the time source used for metadata and footers.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// NewOrchestrator wires the collaborators of the analysis FSM.
func NewOrchestrator(resolver types.Resolver, contexts ContextBuilder, factory StrategyFactory, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		resolver: resolver,
		contexts: contexts,
		factory:  factory,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// run is the state carried across one Analyze call.
type run struct {
	subjectID  string
	subject    *types.Subject
	rc         *aggregate.ReportContext
	meta       Metadata
	primaryErr error
	result     *Result
}

// Analyze produces a classified Result for subjectID. It never returns an
// error and never panics.
func (o *Orchestrator) Analyze(ctx context.Context, subjectID string) (res *Result) {
	timer := logging.StartTimer(logging.CategoryAnalysis, "Analyze")
	defer timer.StopWithThreshold(slowAnalysis)

	r := &run{subjectID: subjectID}
	log := logging.WithRequestID(logging.CategoryAnalysis, uuid.NewString()[:8]).WithField("subject", subjectID)
	defer func() {
		if p := recover(); p != nil {
			logging.AnalysisError("Panic during analysis of subject=%s: %v\n%s", subjectID, p, debug.Stack())
			res = o.failure(r, fmt.Errorf("%w: panic: %v", ErrTerminal, p), nil)
		}
	}()

	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	st := stateInit
	for st != stateDone {
		next := o.step(ctx, r, st)
		log.Info("%s -> %s", st, next)
		st = next
	}

	logging.Get(logging.CategoryAnalysis).StructuredLog("info", "analysis finished", map[string]interface{}{
		"subject":         subjectID,
		"method":          r.result.Method.String(),
		"structured_logs": r.result.Metadata.TotalStructuredLogs,
		"chat_logs":       r.result.Metadata.TotalChatLogs,
	})

	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditAnalysisResult,
		Target:    subjectID,
		Action:    r.result.Method.String(),
		Success:   r.result.Method.Succeeded(),
	})
	o.persist(ctx, r)
	return r.result
}

func (o *Orchestrator) step(ctx context.Context, r *run, st state) state {
	switch st {
	case stateInit:
		r.meta = Metadata{GeneratedAt: o.now()}
		return stateResolve

	case stateResolve:
		subj, err := o.resolver.Resolve(ctx, r.subjectID)
		if err == nil && subj == nil {
			err = fmt.Errorf("%w: %s", types.ErrSubjectNotFound, r.subjectID)
		}
		if err != nil {
			if errors.Is(err, types.ErrSubjectNotFound) {
				r.result = &Result{Text: notFoundText(r.subjectID), Method: NotFound, Metadata: r.meta}
				return stateDone
			}
			r.result = o.failure(r, fmt.Errorf("%w: resolve subject: %v", ErrTerminal, err), nil)
			return stateDone
		}
		r.subject = subj
		r.meta.SubjectName = strPtr(subj.Name)
		r.meta.OwnerID = strPtr(subj.OwnerID)

		rc, err := o.contexts.Aggregate(ctx, subj)
		if err != nil {
			r.result = o.failure(r, fmt.Errorf("%w: aggregate logs: %v", ErrTerminal, err), nil)
			return stateDone
		}
		r.rc = rc
		r.meta.HasStructuredLogs = rc.HasStructuredLogs()
		r.meta.HasChatLogs = rc.HasChatLogs()
		r.meta.TotalStructuredLogs = rc.StructuredCount
		r.meta.TotalChatLogs = rc.ChatCount
		return stateTier1

	case stateTier1:
		strategy, err := o.newPrimary(r.subject)
		if err != nil {
			logging.AnalysisWarn("Primary strategy construction failed for subject=%s: %v", r.subjectID, err)
			o.auditFailure(r.subjectID, st, err)
			r.primaryErr = err
			return stateTier2
		}
		text, err := o.invoke(ctx, st, strategy, agentPrompt(r.subjectID, r.rc.Text))
		if err != nil {
			r.primaryErr = err
			if isParsingFailure(err) {
				return stateTier3
			}
			return stateTier2
		}
		r.result = o.success(r, PrimaryAgent, text)
		return stateDone

	case stateTier2, stateTier3:
		method, prompt := DirectFallback, directPrompt(r.subjectID, r.rc.Text)
		if st == stateTier3 {
			method, prompt = ParsingErrorFallback, parsingFallbackPrompt(r.subjectID, r.rc.Text)
		}
		text, err := o.invoke(ctx, st, o.factory.Direct(), prompt)
		if err != nil {
			r.result = o.failure(r, r.primaryErr, err)
			return stateDone
		}
		r.result = o.success(r, method, text)
		return stateDone
	}

	r.result = o.failure(r, fmt.Errorf("%w: unknown state %d", ErrTerminal, int(st)), nil)
	return stateDone
}

// newPrimary treats a panicking factory as a construction failure.
func (o *Orchestrator) newPrimary(subj *types.Subject) (s Strategy, err error) {
	defer func() {
		if p := recover(); p != nil {
			s, err = nil, fmt.Errorf("%w: panic: %v", ErrStrategyConstruction, p)
		}
	}()
	s, err = o.factory.NewPrimary(subj)
	if err == nil && s == nil {
		err = fmt.Errorf("%w: factory returned no strategy", ErrStrategyConstruction)
	}
	return s, err
}

// invoke calls strategy once, converting a panic into an invocation error.
func (o *Orchestrator) invoke(ctx context.Context, st state, strategy Strategy, p Prompt) (text string, err error) {
	start := time.Now()
	logging.Audit(logging.AuditEvent{EventType: logging.AuditTierAttempt, Action: st.String()})

	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("%w: panic: %v", ErrStrategyInvocation, r)
		}
		if err != nil {
			logging.AnalysisWarn("%s failed after %v: %v", st, time.Since(start), err)
			o.auditFailure("", st, err)
		}
	}()

	if strategy == nil {
		return "", fmt.Errorf("%w: no strategy", ErrStrategyInvocation)
	}
	return strategy.Invoke(ctx, p)
}

func (o *Orchestrator) auditFailure(subjectID string, st state, err error) {
	logging.Audit(logging.AuditEvent{
		EventType: logging.AuditTierFailure,
		Target:    subjectID,
		Action:    st.String(),
		Error:     err.Error(),
	})
}

func (o *Orchestrator) success(r *run, method Method, text string) *Result {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(text))
	b.WriteString("\n\n---\n**Generation info:**\n")
	fmt.Fprintf(&b, "- Analysis time: %s\n", o.now().Format(footerTimeLayout))
	fmt.Fprintf(&b, "- Method: %s\n", method.Label())
	fmt.Fprintf(&b, "- Experiment ID: %s\n", r.subjectID)
	return &Result{Text: b.String(), Method: method, Metadata: r.meta}
}

// failure builds a TerminalFailure result quoting the primary and fallback
// errors. fallbackErr is nil when no fallback ran.
func (o *Orchestrator) failure(r *run, primaryErr, fallbackErr error) *Result {
	var b strings.Builder
	b.WriteString("# Analysis Failed\n\n")
	fmt.Fprintf(&b, "**Experiment ID:** %s\n", r.subjectID)
	if fallbackErr == nil {
		fmt.Fprintf(&b, "**Error:** %s\n", errText(primaryErr))
	} else {
		fmt.Fprintf(&b, "**Agent error:** %s\n", errText(primaryErr))
		fmt.Fprintf(&b, "**Fallback error:** %s\n", errText(fallbackErr))
	}
	fmt.Fprintf(&b, "**Time:** %s\n", o.now().Format(footerTimeLayout))
	return &Result{Text: b.String(), Method: TerminalFailure, Metadata: r.meta}
}

func (o *Orchestrator) persist(ctx context.Context, r *run) {
	if o.sink == nil || r.subject == nil {
		return
	}
	err := o.sink.SaveAnalysis(context.WithoutCancel(ctx), store.AnalysisRecord{
		SubjectID:      r.subjectID,
		Method:         r.result.Method.String(),
		Text:           r.result.Text,
		StructuredLogs: r.result.Metadata.TotalStructuredLogs,
		ChatLogs:       r.result.Metadata.TotalChatLogs,
		GeneratedAt:    r.result.Metadata.GeneratedAt,
	})
	if err != nil {
		logging.AnalysisWarn("Failed to persist analysis for subject=%s: %v", r.subjectID, err)
	}
}

func notFoundText(subjectID string) string {
	return fmt.Sprintf("# Experiment Not Found\n\nNo experiment exists with ID %s.\n", subjectID)
}

// isParsingFailure matches the agent's parsing-error signature by
// description, case-insensitively.
func isParsingFailure(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "parsing") || strings.Contains(msg, "output")
}

func errText(err error) string {
	if err == nil {
		return "unknown"
	}
	return err.Error()
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
