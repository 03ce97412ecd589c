// Package gateway is the server-side request orchestrator: it validates
// inbound chat payloads, branches between the text and image completion
// paths, normalizes provider failures into the closed error taxonomy, and
// returns the authoritative updated history.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"gemchat/internal/domain"
)

// ParamGetter fetches configuration parameters by name.
type ParamGetter interface {
	GetParameter(ctx context.Context, name string) (string, error)
}

// LLMClient is the upstream model surface the gateway depends on.
type LLMClient interface {
	Generate(ctx context.Context, model string, history []domain.Turn, message string) (string, error)
	GenerateVision(ctx context.Context, model, prompt, mimeType, b64Data string) (string, error)
	Ping(ctx context.Context, model string) error
}

// rehydrateLimit caps how many archived turns are replayed as context when a
// request resumes a conversation without carrying its own history.
const rehydrateLimit = 50

// Archive persists completed exchanges and reads them back for resumed
// conversations. Both directions are best-effort: a failure is logged and
// never fails the chat response.
type Archive interface {
	SaveExchange(ctx context.Context, conversationID string, userTurn, modelTurn domain.Turn) error
	GetHistory(ctx context.Context, conversationID string, limit int) ([]domain.Turn, error)
}

// Service handles one chat exchange per request. It is stateless per request;
// the only shared state is the cached model configuration, guarded for
// concurrent use.
type Service struct {
	params      ParamGetter
	llm         LLMClient
	archive     Archive // nil disables archiving
	paramPrefix string
	log         *slog.Logger

	cacheMu     sync.RWMutex
	cacheLoaded bool
	textModel   string
	visionModel string
}

// NewService creates a Service. archive may be nil to disable the exchange
// archive; log may be nil for a default logger.
func NewService(p ParamGetter, llm LLMClient, archive Archive, paramPrefix string, log *slog.Logger) (*Service, error) {
	if p == nil {
		return nil, errors.New("gateway: param getter must not be nil")
	}
	if llm == nil {
		return nil, errors.New("gateway: llm client must not be nil")
	}
	paramPrefix = strings.TrimRight(strings.TrimSpace(paramPrefix), "/")
	if paramPrefix == "" {
		return nil, errors.New("gateway: parameter prefix must not be empty")
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		params:      p,
		llm:         llm,
		archive:     archive,
		paramPrefix: paramPrefix,
		log:         log,
	}, nil
}

// Handle processes one chat exchange. The returned error is always a
// *domain.Error carrying exactly one ErrorKind; success and failure are
// mutually exclusive.
func (s *Service) Handle(ctx context.Context, req domain.ChatRequest) (domain.ChatResponse, error) {
	message := strings.TrimSpace(req.Message)
	if message == "" {
		return domain.ChatResponse{}, domain.NewError(domain.KindMissingMessage, "empty_message", nil)
	}
	if err := s.ensureConfig(ctx); err != nil {
		return domain.ChatResponse{}, domain.NewError(domain.KindModelUnavailable, "config_load_error", err)
	}

	convID := strings.TrimSpace(req.ConversationID)
	resumed := convID != ""
	if !resumed {
		convID = uuid.NewString()
	}

	if req.Image != nil {
		return s.handleImage(ctx, convID, message, req.Image)
	}

	history := req.History
	if resumed && len(history) == 0 {
		history = s.rehydrateHistory(ctx, convID)
	}
	return s.handleText(ctx, convID, message, history)
}

// rehydrateHistory reloads archived turns for a resumed conversation whose
// request carried no history of its own. Read failures are logged and the
// exchange proceeds without prior context.
func (s *Service) rehydrateHistory(ctx context.Context, convID string) []domain.Turn {
	if s.archive == nil {
		return nil
	}
	turns, err := s.archive.GetHistory(ctx, convID, rehydrateLimit)
	if err != nil {
		s.log.Warn("history rehydration failed", "conversationId", convID, "err", err)
		return nil
	}
	return turns
}

// handleText replays the supplied history as prior turns, sends the message,
// and appends the user and model turns to the returned history.
func (s *Service) handleText(ctx context.Context, convID, message string, history []domain.Turn) (domain.ChatResponse, error) {
	reply, err := s.llm.Generate(ctx, s.configuredTextModel(), history, message)
	if err != nil {
		return domain.ChatResponse{}, classify(err)
	}

	userTurn := domain.Turn{Role: domain.RoleUser, Parts: message}
	modelTurn := domain.Turn{Role: domain.RoleModel, Parts: reply}

	updated := make([]domain.Turn, 0, len(history)+2)
	updated = append(updated, history...)
	updated = append(updated, userTurn, modelTurn)

	s.archiveExchange(ctx, convID, userTurn, modelTurn)

	return domain.ChatResponse{Response: reply, History: updated, ConversationID: convID}, nil
}

// handleImage runs a single-turn image analysis. The supplied history is
// ignored and a fresh two-turn history is returned; multi-turn image context
// is a documented limitation of this path.
func (s *Service) handleImage(ctx context.Context, convID, message string, img *domain.ImagePayload) (domain.ChatResponse, error) {
	mimeType, b64, err := domain.ParseDataURL(img.Data)
	if err != nil {
		return domain.ChatResponse{}, domain.NewError(domain.KindAttachmentRejected, "malformed_data_url", err)
	}

	prompt := message
	if name := strings.TrimSpace(img.Name); name != "" {
		prompt = fmt.Sprintf("%s\n\nThe user attached an image named %q.", message, name)
	}

	reply, err := s.llm.GenerateVision(ctx, s.configuredVisionModel(), prompt, mimeType, b64)
	if err != nil {
		return domain.ChatResponse{}, classify(err)
	}

	userTurn := domain.Turn{Role: domain.RoleUser, Parts: domain.ImageAnalysisPrefix + message}
	modelTurn := domain.Turn{Role: domain.RoleModel, Parts: reply}

	s.archiveExchange(ctx, convID, userTurn, modelTurn)

	return domain.ChatResponse{
		Response:       reply,
		History:        []domain.Turn{userTurn, modelTurn},
		ConversationID: convID,
	}, nil
}

func (s *Service) archiveExchange(ctx context.Context, convID string, userTurn, modelTurn domain.Turn) {
	if s.archive == nil {
		return
	}
	if err := s.archive.SaveExchange(ctx, convID, userTurn, modelTurn); err != nil {
		s.log.Warn("archive write failed", "conversationId", convID, "err", err)
	}
}

// Health reports gateway and upstream-model liveness. Never gates sending.
func (s *Service) Health(ctx context.Context) domain.HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := s.ensureConfig(ctx); err != nil {
		return domain.HealthStatus{Status: domain.HealthDegraded, Model: domain.HealthUnavailable}
	}
	if err := s.llm.Ping(ctx, s.configuredTextModel()); err != nil {
		return domain.HealthStatus{Status: domain.HealthDegraded, Model: domain.HealthUnavailable}
	}
	return domain.HealthStatus{Status: domain.HealthOK, Model: domain.HealthOK}
}

// Models enumerates the configured model identifiers and their capability
// tags. Informational only; the request path does not consume it.
func (s *Service) Models(ctx context.Context) ([]domain.ModelInfo, error) {
	if err := s.ensureConfig(ctx); err != nil {
		return nil, domain.NewError(domain.KindModelUnavailable, "config_load_error", err)
	}
	return []domain.ModelInfo{
		{ID: s.configuredTextModel(), Capabilities: []string{domain.CapabilityText}},
		{ID: s.configuredVisionModel(), Capabilities: []string{domain.CapabilityText, domain.CapabilityMultimodal}},
	}, nil
}

func (s *Service) configuredTextModel() string {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.textModel
}

func (s *Service) configuredVisionModel() string {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	return s.visionModel
}

// ensureConfig lazily loads model names from the parameter store on the first
// request and caches them for the process lifetime. A load failure is retried
// on the next request.
func (s *Service) ensureConfig(ctx context.Context) error {
	s.cacheMu.RLock()
	if s.cacheLoaded {
		s.cacheMu.RUnlock()
		return nil
	}
	s.cacheMu.RUnlock()

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.cacheLoaded {
		return nil
	}

	textModel, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/text_model")
	if err != nil {
		return fmt.Errorf("gateway: load text model: %w", err)
	}
	visionModel, err := s.params.GetParameter(ctx, s.paramPrefix+"/config/vision_model")
	if err != nil {
		return fmt.Errorf("gateway: load vision model: %w", err)
	}

	s.textModel = strings.TrimSpace(textModel)
	s.visionModel = strings.TrimSpace(visionModel)
	if s.textModel == "" || s.visionModel == "" {
		return errors.New("gateway: model parameters must not be empty")
	}
	s.cacheLoaded = true
	return nil
}
