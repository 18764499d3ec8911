package services

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/bidcast/backend/internal/config"
	"github.com/bidcast/backend/internal/models"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/viper"
)

type CampaignService struct {
	db        *sql.DB
	validator *ValidationHelper
	config    *config.CrowdfundConfig
}

// CreateCampaignRequest is the creator-facing campaign creation payload.
// @Description Campaign creation request structure
type CreateCampaignRequest struct {
	Title       string `json:"title" validate:"required,min=3,max=120" example:"New studio microphone"`
	Description string `json:"description" validate:"required,max=5000"`
	GoalAmount  int64  `json:"goalAmount" validate:"required,gt=0" example:"100000"` // in cents
	Deadline    int64  `json:"deadline" validate:"required" example:"1767225600000"` // Unix epoch millis
	Image       string `json:"image,omitempty"`
}

type UpdateCampaignRequest struct {
	Title       *string `json:"title,omitempty" validate:"omitempty,min=3,max=120"`
	Description *string `json:"description,omitempty" validate:"omitempty,max=5000"`
	GoalAmount  *int64  `json:"goalAmount,omitempty" validate:"omitempty,gt=0"`
	Deadline    *int64  `json:"deadline,omitempty"`
	Image       *string `json:"image,omitempty"`
}

func NewCampaignService(db *sql.DB, cfg *config.CrowdfundConfig) *CampaignService {
	if cfg == nil {
		cfg = config.LoadCrowdfundConfig()
	}
	return &CampaignService{
		db:        db,
		validator: NewValidationHelper(),
		config:    cfg,
	}
}

// CreateCampaign creates a crowdfunding campaign for the authenticated creator
// @Summary Create a campaign
// @Description Create a new crowdfunding campaign with a goal amount and deadline
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body CreateCampaignRequest true "Campaign data"
// @Success 201 {object} object{campaignId=string}
// @Failure 400 {object} ErrorResponse
// @Failure 401 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /campaigns [post]
func (cs *CampaignService) CreateCampaign(w http.ResponseWriter, r *http.Request) {
	user, err := resolveUser(r.Context(), cs.db)
	if err != nil {
		log.Printf("[CAMPAIGN] Create rejected: %v", err)
		SendErrorResponse(w, err.Error(), identityStatus(err), nil)
		return
	}

	maxBytes := 1_048_576 // 1 MB
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req CreateCampaignRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	deadline := time.UnixMilli(req.Deadline)
	if !deadline.After(time.Now()) {
		log.Printf("[CAMPAIGN] Rejected expired deadline %v from user %d", deadline, user.ID)
		SendErrorResponse(w, "Deadline must be in the future", http.StatusBadRequest, nil)
		return
	}

	campaignID := uuid.New().String()
	_, err = cs.db.ExecContext(r.Context(), `
		INSERT INTO campaigns (id, creator_id, title, description, goal_amount, deadline, funded_amount, status, image, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, 0, 'open', $7, NOW(), NOW())
	`, campaignID, user.ID, req.Title, req.Description, req.GoalAmount, deadline, req.Image)

	if err != nil {
		log.Printf("[CAMPAIGN] Insert failed for user %d: %v", user.ID, err)
		SendErrorResponse(w, "Failed to create campaign", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CAMPAIGN] Created %s by user %d, goal %d, deadline %v", campaignID, user.ID, req.GoalAmount, deadline)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"campaignId": campaignID})
}

// GetCampaign retrieves a single campaign by ID
// @Summary Get campaign by ID
// @Description Retrieve a campaign, public visibility
// @Tags campaigns
// @Produce json
// @Param campaignId path string true "Campaign ID"
// @Success 200 {object} models.Campaign
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{campaignId} [get]
func (cs *CampaignService) GetCampaign(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")

	campaign, err := cs.fetchCampaign(campaignID)
	if err != nil {
		if err == sql.ErrNoRows {
			SendErrorResponse(w, "Campaign not found", http.StatusNotFound, nil)
		} else {
			log.Printf("[CAMPAIGN] Fetch failed for %s: %v", campaignID, err)
			SendErrorResponse(w, "Failed to fetch campaign", http.StatusInternalServerError, nil)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(campaign)
}

// ListCampaigns lists campaigns with optional filters
// @Summary List campaigns
// @Description Get campaigns with optional status equality filter and case-insensitive text search
// @Tags campaigns
// @Produce json
// @Param status query string false "Filter by status (open, succeeded, failed)"
// @Param search query string false "Substring match on title or description"
// @Success 200 {object} object{campaigns=[]models.Campaign,count=int}
// @Failure 500 {object} ErrorResponse
// @Router /campaigns [get]
func (cs *CampaignService) ListCampaigns(w http.ResponseWriter, r *http.Request) {
	status := strings.TrimSpace(r.URL.Query().Get("status"))
	search := strings.TrimSpace(r.URL.Query().Get("search"))

	var conditions []string
	var args []interface{}
	argIndex := 1

	baseQuery := `
		SELECT id, creator_id, title, description, goal_amount, deadline, funded_amount, status, image, created_at, updated_at
		FROM campaigns
	`

	if status != "" {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, status)
		argIndex++
	}

	if search != "" {
		conditions = append(conditions, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d)", argIndex, argIndex))
		args = append(args, "%"+search+"%")
		argIndex++
	}

	query := baseQuery
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY created_at DESC"

	rows, err := cs.db.QueryContext(r.Context(), query, args...)
	if err != nil {
		log.Printf("[CAMPAIGN] List query failed: %v", err)
		SendErrorResponse(w, "Failed to fetch campaigns", http.StatusInternalServerError, nil)
		return
	}
	defer rows.Close()

	campaigns := []models.Campaign{}
	for rows.Next() {
		var c models.Campaign
		err := rows.Scan(&c.ID, &c.CreatorID, &c.Title, &c.Description, &c.GoalAmount,
			&c.Deadline, &c.FundedAmount, &c.Status, &c.Image, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			log.Printf("[CAMPAIGN] List scan failed: %v", err)
			SendErrorResponse(w, "Failed to fetch campaigns", http.StatusInternalServerError, nil)
			return
		}
		campaigns = append(campaigns, c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"campaigns": campaigns,
		"count":     len(campaigns),
	})
}

// UpdateCampaign patches campaign fields, creator or admin only
// @Summary Update a campaign
// @Description Patch editable campaign fields. Status and funded amount are owned by the settlement engine and cannot be set here.
// @Tags campaigns
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param campaignId path string true "Campaign ID"
// @Param request body UpdateCampaignRequest true "Fields to update"
// @Success 200 {object} object{updated=bool}
// @Failure 400 {object} ErrorResponse
// @Failure 403 {object} ErrorResponse
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{campaignId} [patch]
func (cs *CampaignService) UpdateCampaign(w http.ResponseWriter, r *http.Request) {
	user, err := resolveUser(r.Context(), cs.db)
	if err != nil {
		SendErrorResponse(w, err.Error(), identityStatus(err), nil)
		return
	}

	campaignID := chi.URLParam(r, "campaignId")

	var creatorID int
	err = cs.db.QueryRowContext(r.Context(), `SELECT creator_id FROM campaigns WHERE id = $1`, campaignID).Scan(&creatorID)
	if err == sql.ErrNoRows {
		SendErrorResponse(w, "Campaign not found", http.StatusNotFound, nil)
		return
	}
	if err != nil {
		log.Printf("[CAMPAIGN] Owner lookup failed for %s: %v", campaignID, err)
		SendErrorResponse(w, "Failed to update campaign", http.StatusInternalServerError, nil)
		return
	}

	if creatorID != user.ID && !user.Admin() {
		log.Printf("[CAMPAIGN] Update denied for %s: user %d is not creator %d", campaignID, user.ID, creatorID)
		SendErrorResponse(w, ErrNotCampaignOwner.Error(), http.StatusForbidden, nil)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1_048_576)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req UpdateCampaignRequest
	if err := dec.Decode(&req); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return
	}

	if err := cs.validator.ValidateStruct(&req); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return
	}

	var sets []string
	var args []interface{}
	argIndex := 1

	if req.Title != nil {
		sets = append(sets, fmt.Sprintf("title = $%d", argIndex))
		args = append(args, *req.Title)
		argIndex++
	}
	if req.Description != nil {
		sets = append(sets, fmt.Sprintf("description = $%d", argIndex))
		args = append(args, *req.Description)
		argIndex++
	}
	if req.GoalAmount != nil {
		sets = append(sets, fmt.Sprintf("goal_amount = $%d", argIndex))
		args = append(args, *req.GoalAmount)
		argIndex++
	}
	if req.Deadline != nil {
		deadline := time.UnixMilli(*req.Deadline)
		if !deadline.After(time.Now()) {
			SendErrorResponse(w, "Deadline must be in the future", http.StatusBadRequest, nil)
			return
		}
		sets = append(sets, fmt.Sprintf("deadline = $%d", argIndex))
		args = append(args, deadline)
		argIndex++
	}
	if req.Image != nil {
		sets = append(sets, fmt.Sprintf("image = $%d", argIndex))
		args = append(args, *req.Image)
		argIndex++
	}

	if len(sets) == 0 {
		SendErrorResponse(w, "No updatable fields provided", http.StatusBadRequest, nil)
		return
	}

	sets = append(sets, "updated_at = NOW()")
	args = append(args, campaignID)
	query := fmt.Sprintf("UPDATE campaigns SET %s WHERE id = $%d", strings.Join(sets, ", "), argIndex)

	if _, err := cs.db.ExecContext(r.Context(), query, args...); err != nil {
		log.Printf("[CAMPAIGN] Update failed for %s: %v", campaignID, err)
		SendErrorResponse(w, "Failed to update campaign", http.StatusInternalServerError, nil)
		return
	}

	log.Printf("[CAMPAIGN] Updated %s by user %d", campaignID, user.ID)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"updated": true})
}

// CanUserPledge reports whether a campaign accepts pledges
// @Summary Check pledge eligibility
// @Description True iff the campaign is open. Under the single-pledge policy an authenticated caller who already pledged also gets false.
// @Tags campaigns
// @Produce json
// @Param campaignId path string true "Campaign ID"
// @Success 200 {object} object{canPledge=bool}
// @Router /campaigns/{campaignId}/can-pledge [get]
func (cs *CampaignService) CanUserPledge(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")

	var status string
	err := cs.db.QueryRowContext(r.Context(), `SELECT status FROM campaigns WHERE id = $1`, campaignID).Scan(&status)
	if err != nil {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]bool{"canPledge": false})
		return
	}

	canPledge := status == models.CampaignOpen

	if canPledge && cs.config.SinglePledgePerUser {
		if user, err := resolveUser(r.Context(), cs.db); err == nil {
			var exists bool
			err := cs.db.QueryRowContext(r.Context(), `
				SELECT EXISTS(SELECT 1 FROM pledges WHERE user_id = $1 AND campaign_id = $2)
			`, user.ID, campaignID).Scan(&exists)
			if err == nil && exists {
				canPledge = false
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]bool{"canPledge": canPledge})
}

// ShareQR renders a QR code pointing at the campaign's public page
// @Summary Campaign share QR code
// @Description Generate a PNG QR code linking to the campaign pledge page
// @Tags campaigns
// @Produce png
// @Param campaignId path string true "Campaign ID"
// @Success 200 {string} binary "PNG image"
// @Failure 404 {object} ErrorResponse
// @Router /campaigns/{campaignId}/qr [get]
func (cs *CampaignService) ShareQR(w http.ResponseWriter, r *http.Request) {
	campaignID := chi.URLParam(r, "campaignId")

	var exists bool
	if err := cs.db.QueryRowContext(r.Context(), `SELECT EXISTS(SELECT 1 FROM campaigns WHERE id = $1)`, campaignID).Scan(&exists); err != nil || !exists {
		SendErrorResponse(w, "Campaign not found", http.StatusNotFound, nil)
		return
	}

	appURL := viper.GetString("app.url")
	if appURL == "" {
		appURL = "https://bidcast.app"
	}

	png, err := qrcode.Encode(fmt.Sprintf("%s/campaigns/%s", appURL, campaignID), qrcode.Medium, 256)
	if err != nil {
		log.Printf("[CAMPAIGN] QR generation failed for %s: %v", campaignID, err)
		SendErrorResponse(w, "Failed to generate QR code", http.StatusInternalServerError, nil)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "public, max-age=3600")
	w.Write(png)
}

func (cs *CampaignService) fetchCampaign(campaignID string) (*models.Campaign, error) {
	var c models.Campaign
	err := cs.db.QueryRow(`
		SELECT id, creator_id, title, description, goal_amount, deadline, funded_amount, status, image, created_at, updated_at
		FROM campaigns
		WHERE id = $1
	`, campaignID).Scan(&c.ID, &c.CreatorID, &c.Title, &c.Description, &c.GoalAmount,
		&c.Deadline, &c.FundedAmount, &c.Status, &c.Image, &c.CreatedAt, &c.UpdatedAt)

	if err != nil {
		return nil, err
	}
	return &c, nil
}

// identityStatus maps identity resolution failures to HTTP codes.
func identityStatus(err error) int {
	switch err {
	case ErrUnauthenticated:
		return http.StatusUnauthorized
	case ErrUserNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
