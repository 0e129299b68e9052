package model

import (
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"gorm.io/datatypes"

	"github.com/casefunnel/lead-intake/pkg/utils"
)

func init() {
	gofakeit.Seed(time.Now().UnixNano())
}

// --- Test/fixture factories ---

// NewConversation creates a Conversation with fake data. Overrides from the
// optional argument replace the generated values field by field.
func NewConversation(overrideDefaults ...*Conversation) *Conversation {
	base := &Conversation{
		ID:         uuid.NewString(),
		ExternalID: "conv_" + gofakeit.LetterN(16),
		Status:     ConversationStatusNew,
		CreatedAt:  utils.Now(),
		UpdatedAt:  utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.ExternalID != "" {
			base.ExternalID = ovr.ExternalID
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.Transcript != "" {
			base.Transcript = ovr.Transcript
		}
		if ovr.UserID != nil {
			base.UserID = ovr.UserID
		}
	}

	return base
}

// NewLead creates a Lead with fake data linked to a fresh conversation id.
func NewLead(overrideDefaults ...*Lead) *Lead {
	area := gofakeit.RandomString(PracticeAreas)
	base := &Lead{
		ID:             uuid.NewString(),
		ConversationID: uuid.NewString(),
		PracticeArea:   &area,
		Location:       gofakeit.City() + ", " + gofakeit.StateAbr(),
		UrgencyScore:   gofakeit.Number(1, 10),
		Summary:        gofakeit.Sentence(12),
		Status:         LeadStatusNew,
		CreatedAt:      utils.Now(),
		UpdatedAt:      utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.ConversationID != "" {
			base.ConversationID = ovr.ConversationID
		}
		if ovr.PracticeArea != nil {
			base.PracticeArea = ovr.PracticeArea
		}
		if ovr.Location != "" {
			base.Location = ovr.Location
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
		if ovr.ClaimedByFirmID != nil {
			base.ClaimedByFirmID = ovr.ClaimedByFirmID
			base.ClaimedByUserID = ovr.ClaimedByUserID
			base.ClaimedAt = ovr.ClaimedAt
		}
	}

	return base
}

// NewMatch creates a pending Match with fake data.
func NewMatch(overrideDefaults ...*Match) *Match {
	base := &Match{
		ID:        uuid.NewString(),
		LeadID:    uuid.NewString(),
		FirmID:    uuid.NewString(),
		Score:     gofakeit.Float64Range(0, 1),
		Status:    MatchStatusPending,
		CreatedAt: utils.Now(),
		UpdatedAt: utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.LeadID != "" {
			base.LeadID = ovr.LeadID
		}
		if ovr.FirmID != "" {
			base.FirmID = ovr.FirmID
		}
		if ovr.Score != 0 {
			base.Score = ovr.Score
		}
		if ovr.Status != "" {
			base.Status = ovr.Status
		}
	}

	return base
}

// NewLawFirm creates an active starter-tier LawFirm with fake data.
func NewLawFirm(overrideDefaults ...*LawFirm) *LawFirm {
	areas := utils.MustMarshalJSON([]string{gofakeit.RandomString(PracticeAreas)})
	base := &LawFirm{
		ID:                 uuid.NewString(),
		Name:               gofakeit.Company() + " LLP",
		PracticeAreas:      datatypes.JSON(areas),
		Location:           gofakeit.City() + ", " + gofakeit.StateAbr(),
		PaymentCustomerID:  "cus_" + gofakeit.LetterN(14),
		SubscriptionTier:   TierStarter,
		SubscriptionStatus: SubscriptionActive,
		MonthlyLeadQuota:   QuotaForTier(TierStarter),
		CreatedAt:          utils.Now(),
		UpdatedAt:          utils.Now(),
	}

	if len(overrideDefaults) > 0 && overrideDefaults[0] != nil {
		ovr := overrideDefaults[0]
		if ovr.ID != "" {
			base.ID = ovr.ID
		}
		if ovr.Name != "" {
			base.Name = ovr.Name
		}
		if ovr.PracticeAreas != nil {
			base.PracticeAreas = ovr.PracticeAreas
		}
		if ovr.SubscriptionTier != "" {
			base.SubscriptionTier = ovr.SubscriptionTier
			base.MonthlyLeadQuota = QuotaForTier(ovr.SubscriptionTier)
		}
		if ovr.SubscriptionStatus != "" {
			base.SubscriptionStatus = ovr.SubscriptionStatus
		}
		if ovr.MonthlyLeadQuota != 0 {
			base.MonthlyLeadQuota = ovr.MonthlyLeadQuota
		}
		if ovr.LeadsUsedThisMonth != 0 {
			base.LeadsUsedThisMonth = ovr.LeadsUsedThisMonth
		}
	}

	return base
}

// NewFirmUser creates a firm admin user with fake data.
func NewFirmUser(firmID string) *FirmUser {
	return &FirmUser{
		ID:        uuid.NewString(),
		FirmID:    firmID,
		UserID:    uuid.NewString(),
		Email:     gofakeit.Email(),
		Role:      "admin",
		CreatedAt: utils.Now(),
	}
}
