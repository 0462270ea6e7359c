// Package screening is the decision engine: it classifies a pending
// transaction, decides which detection calls to issue for it and merges the
// resulting risk reports into a presentation model.
//
// Unsupported chains and missing credentials are presentations, not errors.
// Only detection or host failures are returned as errors; callers then use
// Fallback to show what is known about the transaction.
package screening

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/mbd888/txinsight/internal/amount"
	"github.com/mbd888/txinsight/internal/chains"
	"github.com/mbd888/txinsight/internal/detect"
	"github.com/mbd888/txinsight/internal/logging"
	"github.com/mbd888/txinsight/internal/metrics"
	"github.com/mbd888/txinsight/internal/presentation"
	"github.com/mbd888/txinsight/internal/risk"
	"github.com/mbd888/txinsight/internal/traces"
	"go.opentelemetry.io/otel/codes"
)

// Decision paths, used as metric labels.
const (
	PathUnclassified = "unclassified"
	PathNative       = "native_transfer"
	PathContract     = "contract_interaction"
	PathSignature    = "signature"
)

// Evaluation outcomes, used as metric labels.
const (
	OutcomePresented   = "presented"
	OutcomeUnsupported = "unsupported_chain"
	OutcomeNoCreds     = "not_configured"
	OutcomeChainError  = "chain_error"
	OutcomeDisabled    = "disabled"
	OutcomeError       = "error"
)

// Engine evaluates transactions and signature requests. It holds no
// per-evaluation state and is safe for concurrent use.
type Engine struct {
	fetcher   Fetcher
	chains    *chains.Registry
	features  Features
	supported map[string]bool
}

// NewEngine creates an engine over fetcher and the chain registry.
func NewEngine(fetcher Fetcher, reg *chains.Registry, features Features) *Engine {
	if len(features.SupportedChains) == 0 {
		features.SupportedChains = DefaultFeatures().SupportedChains
	}
	return &Engine{
		fetcher:   fetcher,
		chains:    reg,
		features:  features,
		supported: supportSet(features.SupportedChains),
	}
}

// Supported reports whether chainID gets full screening.
func (e *Engine) Supported(chainID string) bool {
	norm, err := chains.Normalize(chainID)
	return err == nil && e.supported[norm]
}

// evaluation carries the labels an evaluation is recorded under.
type evaluation struct {
	path    string
	outcome string
}

// EvaluateTransaction screens tx as sent from origin.
func (e *Engine) EvaluateTransaction(ctx context.Context, host Host, tx detect.Transaction, origin string) (*presentation.Model, error) {
	ctx, span := traces.StartSpan(ctx, "screening.EvaluateTransaction", traces.Address(tx.To))
	defer span.End()

	ev := &evaluation{path: PathUnclassified}
	m, err := e.evaluateTransaction(ctx, host, tx, origin, ev)
	if err != nil {
		ev.outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.L(ctx).Warn("screening failed", "path", ev.path, "error", err)
	}
	span.SetAttributes(traces.Path(ev.path))
	metrics.ObserveScreening(ev.path, ev.outcome)
	return m, err
}

func (e *Engine) evaluateTransaction(ctx context.Context, host Host, tx detect.Transaction, origin string, ev *evaluation) (*presentation.Model, error) {
	chainID, err := host.ChainID(ctx)
	if err != nil || chainID == "" {
		ev.outcome = OutcomeChainError
		return presentation.New(chainErrorSection(chainDetail(chainID, err))), nil
	}

	creds, err := host.GetState(ctx)
	if err != nil {
		return nil, fmt.Errorf("screening: load credentials: %w", err)
	}
	supported := e.Supported(chainID)

	if creds == nil {
		ev.outcome = OutcomeNoCreds
		if supported {
			return presentation.New(setupSection()), nil
		}
		return e.unsupportedWithoutCredentials(ctx, host, tx, chainID)
	}

	native, err := e.classify(ctx, host, tx.To)
	switch {
	case errors.Is(err, ErrBytecodeUnavailable) && !supported:
		// URL-only screening does not depend on the classification.
		native = false
	case err != nil:
		return nil, fmt.Errorf("screening: classify destination: %w", err)
	}
	if native {
		ev.path = PathNative
	} else {
		ev.path = PathContract
	}

	if !supported {
		ev.outcome = OutcomeUnsupported
		return e.unsupportedChain(ctx, tx, chainID, origin, native)
	}

	ev.outcome = OutcomePresented
	if native {
		return e.nativeTransfer(ctx, tx, chainID, origin)
	}
	return e.contractInteraction(ctx, tx, chainID, origin)
}

// classify reports whether to has no code. Contract creation (empty to) is
// a contract interaction and needs no lookup.
func (e *Engine) classify(ctx context.Context, host Host, to string) (bool, error) {
	if to == "" {
		return false, nil
	}
	code, err := host.Bytecode(ctx, to)
	if err != nil {
		return false, err
	}
	return len(code) == 0, nil
}

func (e *Engine) unsupportedChain(ctx context.Context, tx detect.Transaction, chainID, origin string, native bool) (*presentation.Model, error) {
	urlReport, err := e.fetch(ctx, risk.URLDetection, chainID, origin, nil)
	if err != nil {
		return nil, err
	}

	m := presentation.New(urlSection(origin, urlReport))
	if native {
		m.Add(transferSection(e.chains, chainID, tx))
		if s, ok := explorerSection(e.chains, chainID, tx.To); ok {
			m.Add(s)
		}
	}
	m.Add(e.unsupportedSection(true))
	return m, nil
}

// unsupportedWithoutCredentials shows the setup notice and, for a native
// transfer, its details. No detection call is made.
func (e *Engine) unsupportedWithoutCredentials(ctx context.Context, host Host, tx detect.Transaction, chainID string) (*presentation.Model, error) {
	native, err := e.classify(ctx, host, tx.To)
	switch {
	case errors.Is(err, ErrBytecodeUnavailable):
		native = false
	case err != nil:
		return nil, fmt.Errorf("screening: classify destination: %w", err)
	}

	m := presentation.New(setupSection())
	if native {
		m.Add(transferSection(e.chains, chainID, tx))
		if s, ok := explorerSection(e.chains, chainID, tx.To); ok {
			m.Add(s)
		}
	}
	m.Add(e.unsupportedSection(false))
	return m, nil
}

// nativeTransfer screens the destination, then the URL. The calls are
// sequential.
func (e *Engine) nativeTransfer(ctx context.Context, tx detect.Transaction, chainID, origin string) (*presentation.Model, error) {
	addrReport, err := e.fetch(ctx, e.addressBusiness(), chainID, origin, &tx)
	if err != nil {
		return nil, err
	}
	urlReport, err := e.fetch(ctx, risk.URLDetection, chainID, origin, nil)
	if err != nil {
		return nil, err
	}

	m := presentation.New(
		riskSection(presentation.KindTransactionRisk, headingTransaction, addrReport, addrReport.OverallRisk.Known()),
		urlSection(origin, urlReport),
		transferSection(e.chains, chainID, tx),
	)
	if s, ok := explorerSection(e.chains, chainID, tx.To); ok {
		m.Add(s)
	}
	m.Add(traceSection(addrReport.TraceID))
	return m, nil
}

// contractInteraction screens the call and its destination concurrently.
// Both must succeed.
func (e *Engine) contractInteraction(ctx context.Context, tx detect.Transaction, chainID, origin string) (*presentation.Model, error) {
	var txReport, addrReport *risk.Report

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.fetch(gctx, risk.TransactionRequest, chainID, origin, &tx)
		txReport = r
		return err
	})
	if tx.To != "" {
		g.Go(func() error {
			r, err := e.fetch(gctx, e.addressBusiness(), chainID, origin, &tx)
			addrReport = r
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	txSection := riskSection(presentation.KindTransactionRisk, headingTransaction, txReport, true)
	m := presentation.New()
	if addrReport == nil {
		m.Add(txSection)
	} else {
		addrSection := riskSection(presentation.KindDestinationRisk, headingDestination, addrReport, true)
		if addrReport.OverallRisk > txReport.OverallRisk {
			m.Add(addrSection, txSection)
		} else {
			m.Add(txSection, addrSection)
		}
	}

	m.Add(urlSection(origin, txReport))
	if amount.IsPositive(tx.Value) {
		m.Add(transferSection(e.chains, chainID, tx))
	}
	if txReport.HasFunction() {
		m.Add(functionSection(txReport))
	}
	m.Add(traceSection(txReport.TraceID))
	return m, nil
}

// EvaluateSignature screens a signature request. It issues no calls unless
// signature screening is enabled.
func (e *Engine) EvaluateSignature(ctx context.Context, host Host, sig detect.SignatureMeta, origin string) (*presentation.Model, error) {
	ctx, span := traces.StartSpan(ctx, "screening.EvaluateSignature", traces.Path(PathSignature))
	defer span.End()

	ev := &evaluation{path: PathSignature}
	m, err := e.evaluateSignature(ctx, host, sig, origin, ev)
	if err != nil {
		ev.outcome = OutcomeError
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logging.L(ctx).Warn("signature screening failed", "error", err)
	}
	metrics.ObserveScreening(ev.path, ev.outcome)
	return m, err
}

func (e *Engine) evaluateSignature(ctx context.Context, host Host, sig detect.SignatureMeta, origin string, ev *evaluation) (*presentation.Model, error) {
	if !e.features.SignatureScreening {
		ev.outcome = OutcomeDisabled
		return presentation.New(signatureDisabledSection()), nil
	}

	chainID, err := host.ChainID(ctx)
	if err != nil || chainID == "" {
		ev.outcome = OutcomeChainError
		return presentation.New(chainErrorSection(chainDetail(chainID, err))), nil
	}

	creds, err := host.GetState(ctx)
	if err != nil {
		return nil, fmt.Errorf("screening: load credentials: %w", err)
	}
	supported := e.Supported(chainID)
	if creds == nil {
		ev.outcome = OutcomeNoCreds
		m := presentation.New(setupSection())
		if !supported {
			m.Add(e.unsupportedSection(false))
		}
		return m, nil
	}

	if !supported {
		ev.outcome = OutcomeUnsupported
		urlReport, err := e.fetch(ctx, risk.URLDetection, chainID, origin, nil)
		if err != nil {
			return nil, err
		}
		return presentation.New(urlSection(origin, urlReport), e.unsupportedSection(true)), nil
	}

	var sigReport, urlReport *risk.Report
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		r, err := e.fetcher.FetchRisk(gctx, detect.Request{
			Business:  risk.SignatureRequest,
			Origin:    origin,
			ChainID:   chainID,
			Signature: &sig,
		})
		if err != nil {
			return fmt.Errorf("screening: %s: %w", risk.SignatureRequest, err)
		}
		sigReport = r
		return nil
	})
	g.Go(func() error {
		r, err := e.fetch(gctx, risk.URLDetection, chainID, origin, nil)
		urlReport = r
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ev.outcome = OutcomePresented
	return presentation.New(
		riskSection(presentation.KindSignature, headingSignature, sigReport, sigReport.OverallRisk.Known()),
		urlSection(origin, urlReport),
		traceSection(sigReport.TraceID),
	), nil
}

// Fallback builds the presentation shown when an evaluation failed: the
// error plus whatever is known about the transfer.
func (e *Engine) Fallback(tx detect.Transaction, chainID string, err error) *presentation.Model {
	m := presentation.New(presentation.Section{
		Kind:    presentation.KindError,
		Heading: headingInsights,
		Components: []presentation.Component{
			presentation.Text("⚠️ HashDit screening could not be completed. Review this transaction carefully. ⚠️"),
			presentation.Text(fmt.Sprintf("Error: %v", err)),
			presentation.Divider(),
		},
	})
	m.Add(transferSection(e.chains, chainID, tx))
	if s, ok := explorerSection(e.chains, chainID, tx.To); ok {
		m.Add(s)
	}
	return m
}

func (e *Engine) fetch(ctx context.Context, business risk.BusinessType, chainID, origin string, tx *detect.Transaction) (*risk.Report, error) {
	r, err := e.fetcher.FetchRisk(ctx, detect.Request{
		Business:    business,
		Origin:      origin,
		ChainID:     chainID,
		Transaction: tx,
	})
	if err != nil {
		return nil, fmt.Errorf("screening: %s: %w", business, err)
	}
	return r, nil
}

// addressBusiness is the destination screening call, used both for native
// transfers and alongside transaction requests.
func (e *Engine) addressBusiness() risk.BusinessType {
	if e.features.AddressLabels {
		return risk.AddressLabels
	}
	return risk.NativeTransfer
}

func chainDetail(chainID string, err error) string {
	if err != nil {
		return err.Error()
	}
	if chainID == "" {
		return "empty chain id"
	}
	return chainID
}
