// Package extractor implements core.Extractor (§4.3 stage 1): driving a
// hosted browser session against the SEI case-management system to walk a
// process's document tree and pull each document's text. Grounded on
// pkg/integrations/browserbase's generic session/action client, with the
// navigation shape (folder tree vs. root, iframe selectors for the document
// viewer) ported from original_source/fastapi/scripts/detalhar_processo.py,
// which drives the same system via Playwright directly. Per-document reads
// go through pkg/engine.Retry to absorb a frame that hasn't finished
// rendering yet. Total concurrent browser sessions are bounded
// fleet-wide (§5: "a headless browser is expensive") by queue.Semaphore
// when Config.Redis is set, falling back to a process-local channel for
// single-process or test use.
package extractor

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/plattargus/detalhar/pkg/core"
	"github.com/plattargus/detalhar/pkg/engine"
	"github.com/plattargus/detalhar/pkg/integrations/browserbase"
	"github.com/plattargus/detalhar/pkg/queue"
)

// semaphoreSlotTTL bounds how long a fleet-wide semaphore slot is held if a
// worker crashes mid-extraction without releasing it; comfortably above the
// extractor's own timeout so a healthy session never gets preempted.
const semaphoreSlotTTL = 10 * time.Minute

// sessionLimiter bounds concurrent Extract calls, either fleet-wide (via
// Redis) or within this one process.
type sessionLimiter interface {
	acquire(ctx context.Context) (release func(), err error)
}

type localLimiter chan struct{}

func (l localLimiter) acquire(ctx context.Context) (func(), error) {
	select {
	case l <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return func() { <-l }, nil
}

type fleetLimiter struct{ sem *queue.Semaphore }

func (f fleetLimiter) acquire(ctx context.Context) (func(), error) {
	for {
		id, err := f.sem.Acquire(ctx, semaphoreSlotTTL)
		if err == nil {
			return func() { f.sem.Release(context.WithoutCancel(ctx), id) }, nil
		}
		if err != queue.ErrLockNotAcquired {
			return nil, fmt.Errorf("extractor: semaphore acquire: %w", err)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(250 * time.Millisecond):
		}
	}
}

// readAttempts bounds how many times a single document read is attempted
// (first try included) before its content is recorded empty, absorbing the occasional frame
// that hasn't finished rendering when ExtractText runs.
const readAttempts = 2

// Selectors for the SEI document tree/viewer frames, named after
// detalhar_processo.py's SELETOR_FRAME_ARVORE/SELETOR_ARVORE/
// SELETOR_FRAME_CONTEUDO_PAI/SELETOR_FRAME_CONTEUDO_INTERNO.
const (
	selFrameArvore        = `iframe[name="ifrArvore"]`
	selArvore             = `#divArvore`
	selFrameConteudoPai   = `iframe[name="ifrConteudoVisualizacao"]`
	selFrameConteudoInner = `iframe[name="ifrVisualizacao"]`
)

// maxCharsPerDoc truncates any single document's extracted text, mirroring
// detalhar_processo.py's MAX_TEXTO_POR_DOC.
const maxCharsPerDoc = 3000

var docEntryRE = regexp.MustCompile(`(?i)^(\d{6,})\s*[-–]\s*(.+)$`)

// SEIExtractor extracts process documents from SEI via a hosted browser.
type SEIExtractor struct {
	browser *browserbase.Client
	baseURL string
	timeout time.Duration
	limiter sessionLimiter
}

// Config configures a SEIExtractor.
type Config struct {
	APIKey    string
	ProjectID string
	BaseURL   string // SEI instance base URL, e.g. https://sei.orgao.gov.br
	Timeout   time.Duration

	// MaxConcurrency bounds how many hosted browser sessions may run at
	// once. With Redis set this is a fleet-wide cap shared by every
	// worker process; without it, a process-local cap. Defaults to 1
	// (no overlap) if <= 0.
	MaxConcurrency int

	// Redis, when set, backs MaxConcurrency with a queue.Semaphore shared
	// by the whole worker fleet instead of a single process.
	Redis *redis.Client
}

// New builds a SEIExtractor.
func New(cfg Config) *SEIExtractor {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}

	var limiter sessionLimiter
	if cfg.Redis != nil {
		limiter = fleetLimiter{sem: queue.NewSemaphore(cfg.Redis, "extract", maxConcurrency)}
	} else {
		limiter = localLimiter(make(chan struct{}, maxConcurrency))
	}

	return &SEIExtractor{
		browser: browserbase.New(cfg.APIKey, cfg.ProjectID),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		timeout: timeout,
		limiter: limiter,
	}
}

// Extract walks the process identified by nup and returns every document it
// finds, authenticating with creds. It satisfies core.Extractor.
func (e *SEIExtractor) Extract(ctx context.Context, nup string, creds core.Credentials) (core.ProcessDump, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	release, err := e.limiter.acquire(ctx)
	if err != nil {
		return core.ProcessDump{}, err
	}
	defer release()

	session, err := e.browser.CreateSession(ctx, &browserbase.CreateSessionOptions{Timeout: int(e.timeout.Seconds())})
	if err != nil {
		return core.ProcessDump{}, fmt.Errorf("%w: open browser session: %v", core.ErrRetryable, err)
	}
	defer session.Close(ctx)

	if err := e.login(ctx, session, creds); err != nil {
		return core.ProcessDump{}, err
	}

	if _, err := session.Navigate(ctx, e.processURL(nup)); err != nil {
		return core.ProcessDump{}, fmt.Errorf("%w: navigate to process: %v", core.ErrRetryable, err)
	}

	entries, err := e.listDocuments(ctx, session)
	if err != nil {
		return core.ProcessDump{}, err
	}

	readWithRetry := engine.Retry(func(ctx context.Context, docID string) (string, error) {
		return e.readDocument(ctx, session, docID)
	}, readAttempts)

	docs := make([]core.Document, 0, len(entries))
	for i, entry := range entries {
		content, err := readWithRetry(ctx, entry.docID)
		if err != nil {
			// A single unreadable document (e.g. scanned PDF with no OCR
			// path) shouldn't fail the whole extraction; record it empty.
			content = ""
		}
		if len(content) > maxCharsPerDoc {
			content = content[:maxCharsPerDoc]
		}
		docs = append(docs, core.Document{
			Index:      i + 1,
			DocID:      entry.docID,
			Titulo:     entry.titulo,
			TipoRaw:    entry.tipo,
			UnidadeRaw: entry.unidade,
			Conteudo:   content,
		})
	}

	return core.ProcessDump{NUP: nup, Documents: docs}, nil
}

func (e *SEIExtractor) processURL(nup string) string {
	return e.baseURL + "/controlador.php?acao=procedimento_trabalhar&nup=" + strings.TrimSpace(nup)
}

func (e *SEIExtractor) login(ctx context.Context, session *browserbase.Session, creds core.Credentials) error {
	if _, err := session.Navigate(ctx, e.baseURL+"/controlador.php?acao=login"); err != nil {
		return fmt.Errorf("%w: navigate to login: %v", core.ErrRetryable, err)
	}
	if _, err := session.Type(ctx, "#txtUsuario", creds.UserID); err != nil {
		return fmt.Errorf("%w: enter username: %v", core.ErrRetryable, err)
	}
	if _, err := session.Type(ctx, "#pwdSenha", creds.Token); err != nil {
		return fmt.Errorf("%w: enter credential: %v", core.ErrUnauthorized, err)
	}
	if _, err := session.Click(ctx, "#sbmLogin"); err != nil {
		return fmt.Errorf("%w: submit login: %v", core.ErrRetryable, err)
	}

	html, err := session.ExtractHTML(ctx, "body")
	if err != nil {
		return fmt.Errorf("%w: confirm login: %v", core.ErrRetryable, err)
	}
	if strings.Contains(strings.ToLower(html), "usuário ou senha inv") {
		return fmt.Errorf("%w: sei rejected credentials", core.ErrUnauthorized)
	}
	return nil
}

type docEntry struct {
	docID   string
	titulo  string
	tipo    string
	unidade string
}

// listDocuments reads the process's document tree (divArvore inside
// ifrArvore), flattening either a flat RAIZ listing or PASTA I..N folders
// into a single ordered document list.
func (e *SEIExtractor) listDocuments(ctx context.Context, session *browserbase.Session) ([]docEntry, error) {
	tree, err := session.ExtractText(ctx, selFrameArvore+" "+selArvore)
	if err != nil {
		return nil, fmt.Errorf("%w: read document tree: %v", core.ErrRetryable, err)
	}

	var entries []docEntry
	for _, line := range strings.Split(tree, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(strings.ToUpper(line), "PASTA") {
			continue
		}
		m := docEntryRE.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		entries = append(entries, docEntry{docID: m[1], titulo: strings.TrimSpace(m[2])})
	}
	return entries, nil
}

// readDocument opens a single document in the viewer frame and extracts its
// text, mirroring the PDF-then-HTML fallback the original performs (here
// the hosted browser's extract action is asked for text regardless of the
// underlying document kind).
func (e *SEIExtractor) readDocument(ctx context.Context, session *browserbase.Session, docID string) (string, error) {
	if _, err := session.Click(ctx, fmt.Sprintf(`a[title*="%s"]`, docID)); err != nil {
		return "", fmt.Errorf("%w: open document %s: %v", core.ErrRetryable, docID, err)
	}
	text, err := session.ExtractText(ctx, selFrameConteudoPai+" "+selFrameConteudoInner)
	if err != nil {
		return "", fmt.Errorf("%w: read document %s: %v", core.ErrRetryable, docID, err)
	}
	return text, nil
}
