package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/casefunnel/lead-intake/internal/apperrors"
	"github.com/casefunnel/lead-intake/internal/cache"
	"github.com/casefunnel/lead-intake/internal/model"
	"github.com/casefunnel/lead-intake/internal/observer"
	"github.com/casefunnel/lead-intake/internal/storage"
	"github.com/casefunnel/lead-intake/internal/validator"
	"github.com/casefunnel/lead-intake/pkg/logger"
	"github.com/casefunnel/lead-intake/pkg/utils"
)

// TranscriptFetcher fetches the finished transcript from the conversation vendor.
type TranscriptFetcher interface {
	FetchTranscript(ctx context.Context, conversationID string) (string, error)
}

// IntakeService runs the webhook-triggered pipeline: fetch transcript, store
// it write-once, extract structured lead data, persist the lead, and fan it
// out to eligible firms.
type IntakeService struct {
	conversations   storage.ConversationRepo
	leads           storage.LeadRepo
	fetcher         TranscriptFetcher
	extractor       *Extractor
	allocator       *Allocator
	seen            *cache.ProcessedCache
	transcriptDelay time.Duration
}

// NewIntakeService creates the pipeline service. transcriptDelay is the grace
// period between an end-of-call webhook and the transcript fetch; the vendor
// finalizes the transcript shortly after the call ends. seen may be nil to
// disable the processed-conversation fast path.
func NewIntakeService(
	conversations storage.ConversationRepo,
	leads storage.LeadRepo,
	fetcher TranscriptFetcher,
	extractor *Extractor,
	allocator *Allocator,
	seen *cache.ProcessedCache,
	transcriptDelay time.Duration,
) *IntakeService {
	return &IntakeService{
		conversations:   conversations,
		leads:           leads,
		fetcher:         fetcher,
		extractor:       extractor,
		allocator:       allocator,
		seen:            seen,
		transcriptDelay: transcriptDelay,
	}
}

// IntakeResult reports what the pipeline did for one webhook delivery.
type IntakeResult struct {
	ConversationID string               `json:"conversation_id"`
	LeadID         string               `json:"lead_id,omitempty"`
	MatchCount     int                  `json:"match_count"`
	Extracted      *model.ExtractedLead `json:"extracted,omitempty"`
}

// ProcessConversationEnded handles a terminal conversation webhook end to end.
// Every step is idempotent, so vendor redeliveries are safe: the transcript is
// write-once, extraction is skipped for processed conversations with a lead,
// and the fan-out only runs when a new lead row is created. transcriptReady
// means the webhook already guarantees a finalized transcript, so the grace
// delay is skipped.
func (s *IntakeService) ProcessConversationEnded(ctx context.Context, externalID string, transcriptReady bool) (*IntakeResult, error) {
	log := logger.FromContext(ctx).With(zap.String("conversation_id", externalID))

	// Fast path for vendor redeliveries. A filter hit is only "maybe", so the
	// database confirms it before the delivery is dropped.
	if s.seen != nil && s.seen.MaybeProcessed(externalID) {
		if result, ok := s.confirmProcessed(ctx, externalID); ok {
			log.Info("Conversation already processed, skipping redelivery",
				zap.String("lead_id", result.LeadID))
			return result, nil
		}
		s.seen.RecordFalsePositive()
	}

	// End-of-call events race transcript finalization, so they wait out the
	// grace period. Transcription-ready events carry no such race.
	if s.transcriptDelay > 0 && !transcriptReady {
		select {
		case <-time.After(s.transcriptDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	start := utils.Now()
	transcript, err := s.fetcher.FetchTranscript(ctx, externalID)
	observer.ObservePipelineStageDuration("fetch_transcript", time.Since(start))
	if err != nil {
		if errors.Is(err, apperrors.ErrTranscriptNotReady) {
			log.Info("Transcript not ready yet, waiting for redelivery")
			observer.IncPipelineAction("fetch_transcript", "deferred", "none")
			return nil, err
		}
		observer.IncPipelineAction("fetch_transcript", "failed", observer.SanitizeErrorType(err.Error()))
		return nil, err
	}
	observer.IncPipelineAction("fetch_transcript", "fetched", "none")

	conversation, err := s.ensureConversation(ctx, externalID)
	if err != nil {
		return nil, err
	}

	if _, err := s.conversations.SetTranscript(ctx, externalID, transcript); err != nil {
		return nil, err
	}

	result, err := s.ExtractAndAllocate(ctx, conversation, transcript)
	if err == nil && s.seen != nil && result.LeadID != "" {
		s.seen.MarkProcessed(externalID)
	}
	return result, err
}

// confirmProcessed checks the database after a filter hit. It reports true
// only when the conversation is processed and already has a lead.
func (s *IntakeService) confirmProcessed(ctx context.Context, externalID string) (*IntakeResult, bool) {
	conversation, err := s.conversations.FindByExternalID(ctx, externalID)
	if err != nil || conversation.Status != model.ConversationStatusProcessed {
		return nil, false
	}
	existing, err := s.leads.FindByConversationID(ctx, conversation.ID)
	if err != nil || existing == nil {
		return nil, false
	}
	return &IntakeResult{ConversationID: externalID, LeadID: existing.ID}, true
}

// ExtractAndAllocate runs extraction and the match fan-out for a conversation
// whose transcript is already stored. It is shared by the webhook path and the
// internal re-extraction endpoint.
func (s *IntakeService) ExtractAndAllocate(ctx context.Context, conversation *model.Conversation, transcript string) (*IntakeResult, error) {
	log := logger.FromContext(ctx).With(zap.String("conversation_id", conversation.ExternalID))
	result := &IntakeResult{ConversationID: conversation.ExternalID}

	// A redelivered webhook for an already-processed conversation that has a
	// lead is a no-op. A processed conversation without a lead (extraction
	// returned nothing last time) is retried.
	existing, err := s.leads.FindByConversationID(ctx, conversation.ID)
	if err != nil && !apperrors.IsNotFoundError(err) {
		return nil, err
	}
	if conversation.Status == model.ConversationStatusProcessed && existing != nil {
		log.Info("Conversation already processed, skipping extraction",
			zap.String("lead_id", existing.ID))
		result.LeadID = existing.ID
		return result, nil
	}

	start := utils.Now()
	extracted, raw := s.extractor.Extract(ctx, transcript)
	observer.ObservePipelineStageDuration("extract", time.Since(start))

	if err := s.conversations.ApplyExtraction(ctx, conversation.ExternalID, extracted, raw); err != nil {
		return nil, err
	}
	if extracted == nil {
		log.Info("Extraction produced no lead data, conversation marked processed")
		return result, nil
	}
	result.Extracted = extracted

	lead := &model.Lead{
		ID:             uuid.NewString(),
		ConversationID: conversation.ID,
		PracticeArea:   &extracted.CaseCategory,
		Location:       extracted.Location,
		UrgencyScore:   extracted.UrgencyScore,
		Summary:        extracted.Summary,
		Status:         model.LeadStatusNew,
		CreatedAt:      utils.Now(),
		UpdatedAt:      utils.Now(),
	}
	if existing != nil {
		// Re-extraction of a leadless conversation raced a previous delivery
		// that did create the lead; keep the first one.
		lead = existing
	} else {
		// Persisted leads only ever carry taxonomy practice areas.
		if err := validator.Validate(lead); err != nil {
			return nil, fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
		}
		if err := s.leads.Save(ctx, *lead); err != nil {
			if apperrors.IsDuplicateError(err) {
				log.Info("Lead already exists for conversation")
				return result, nil
			}
			return nil, err
		}
		observer.IncLeadsCreated()
		log.Info("Lead created",
			zap.String("lead_id", lead.ID),
			zap.String("practice_area", extracted.CaseCategory),
			zap.Int("urgency_score", extracted.UrgencyScore))
	}
	result.LeadID = lead.ID

	start = utils.Now()
	matches, err := s.allocator.Allocate(ctx, lead)
	observer.ObservePipelineStageDuration("allocate", time.Since(start))
	if err != nil {
		// The lead row is durable; fan-out can be repaired by re-extraction.
		log.Error("Match fan-out failed after lead creation", zap.Error(err))
		return result, err
	}
	result.MatchCount = len(matches)

	return result, nil
}

// IngestTranscript stores a caller-supplied transcript and runs extraction and
// allocation over it, bypassing the vendor fetch. Used by the internal
// extraction endpoint when the caller already holds the transcript.
func (s *IntakeService) IngestTranscript(ctx context.Context, externalID, transcript string) (*IntakeResult, error) {
	conversation, err := s.ensureConversation(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if _, err := s.conversations.SetTranscript(ctx, externalID, transcript); err != nil {
		return nil, err
	}
	return s.ExtractAndAllocate(ctx, conversation, transcript)
}

// Reextract re-runs extraction for a stored conversation, used by the internal
// endpoint when the prompt or taxonomy changed.
func (s *IntakeService) Reextract(ctx context.Context, externalID string) (*IntakeResult, error) {
	conversation, err := s.conversations.FindByExternalID(ctx, externalID)
	if err != nil {
		return nil, err
	}
	if conversation.Transcript == "" {
		return nil, apperrors.ErrTranscriptNotReady
	}
	return s.ExtractAndAllocate(ctx, conversation, conversation.Transcript)
}

// ensureConversation loads the conversation row, creating it when the webhook
// arrives before the frontend registered the session.
func (s *IntakeService) ensureConversation(ctx context.Context, externalID string) (*model.Conversation, error) {
	conversation, err := s.conversations.FindByExternalID(ctx, externalID)
	if err == nil {
		return conversation, nil
	}
	if !apperrors.IsNotFoundError(err) {
		return nil, err
	}

	created := model.Conversation{
		ID:         uuid.NewString(),
		ExternalID: externalID,
		Status:     model.ConversationStatusNew,
		CreatedAt:  utils.Now(),
		UpdatedAt:  utils.Now(),
	}
	if err := s.conversations.Save(ctx, created); err != nil {
		return nil, err
	}
	logger.FromContext(ctx).Info("Conversation row created from webhook",
		zap.String("conversation_id", externalID))
	return &created, nil
}
