package services

import (
	"fmt"
	"math/rand"
	"os"
	"time"

	"wiki-battle-system/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Host-departure policies. The upstream behavior is unspecified, so it is a
// deployment choice (LOBBY_HOST_LEAVE_POLICY).
const (
	HostLeavePromote = "promote_oldest"
	HostLeaveCancel  = "cancel"
)

// Lobby codes avoid characters that read ambiguously over voice chat.
const (
	lobbyCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	lobbyCodeLength   = 6
	lobbyCodeRetries  = 5
)

// LobbyService manages pre-match rooms: private invite-code rooms and public
// browsable ones, with a ready-check before the match starts.
type LobbyService struct {
	DB              *gorm.DB
	Battles         *BattleService
	HostLeavePolicy string
	logger          *zap.Logger
	rng             *rand.Rand
}

func NewLobbyService(db *gorm.DB, battles *BattleService, rng *rand.Rand, logger *zap.Logger) *LobbyService {
	policy := os.Getenv("LOBBY_HOST_LEAVE_POLICY")
	if policy != HostLeaveCancel {
		policy = HostLeavePromote
	}
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &LobbyService{DB: db, Battles: battles, HostLeavePolicy: policy, rng: rng, logger: logger}
}

// JoinResult is returned by Join: either the lobby, or the already-created
// match when the room started without the caller.
type JoinResult struct {
	Lobby *models.Lobby       `json:"lobby,omitempty"`
	Match *models.BattleMatch `json:"match,omitempty"`
}

// Create opens a lobby with a fresh unique code. The host is auto-joined and
// auto-ready.
func (s *LobbyService) Create(hostID string, race models.Race, visibility string, ranked bool, capacity int) (*models.Lobby, error) {
	if capacity < 2 || capacity > 10 {
		return nil, fmt.Errorf("capacity must be between 2 and 10: %w", ErrInvalid)
	}
	if visibility != models.LobbyPublic && visibility != models.LobbyPrivate {
		return nil, fmt.Errorf("visibility must be public or private: %w", ErrInvalid)
	}

	lobby := &models.Lobby{
		ID:         uuid.NewString(),
		Race:       race,
		Ranked:     ranked,
		Visibility: visibility,
		Capacity:   capacity,
		HostID:     hostID,
		Status:     models.LobbyWaiting,
		Participants: []models.LobbyParticipant{{
			ID:     uuid.NewString(),
			UserID: hostID,
			IsHost: true,
			Ready:  true,
		}},
	}

	// Unique-index collisions on the code are retried with a new draw.
	var err error
	for attempt := 0; attempt < lobbyCodeRetries; attempt++ {
		lobby.Code = s.newCode()
		if err = s.DB.Create(lobby).Error; err == nil {
			s.logger.Info("lobby created",
				zap.String("code", lobby.Code),
				zap.String("host_id", hostID),
				zap.String("visibility", visibility),
				zap.Int("capacity", capacity),
			)
			return lobby, nil
		}
	}
	return nil, fmt.Errorf("failed to create lobby: %w", err)
}

func (s *LobbyService) newCode() string {
	code := make([]byte, lobbyCodeLength)
	for i := range code {
		code[i] = lobbyCodeAlphabet[s.rng.Intn(len(lobbyCodeAlphabet))]
	}
	return string(code)
}

// Get loads a lobby and its participants by code.
func (s *LobbyService) Get(code string) (*models.Lobby, error) {
	var lobby models.Lobby
	err := s.DB.Preload("Participants", func(db *gorm.DB) *gorm.DB {
		return db.Order("joined_at ASC")
	}).First(&lobby, "code = ?", code).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, fmt.Errorf("lobby %s: %w", code, ErrNotFound)
		}
		return nil, err
	}
	return &lobby, nil
}

// PublicLobbies lists browsable rooms still waiting for players.
func (s *LobbyService) PublicLobbies() ([]models.Lobby, error) {
	var lobbies []models.Lobby
	err := s.DB.Preload("Participants").
		Where("visibility = ? AND status = ?", models.LobbyPublic, models.LobbyWaiting).
		Order("created_at DESC").
		Limit(50).
		Find(&lobbies).Error
	return lobbies, err
}

// Join adds a user to a waiting lobby. Joining twice is a no-op. A lobby that
// already started hands back its match so a late joiner can resume polling
// instead of erroring.
func (s *LobbyService) Join(code, userID string) (*JoinResult, error) {
	lobby, err := s.Get(code)
	if err != nil {
		return nil, err
	}

	switch lobby.Status {
	case models.LobbyInProgress:
		if lobby.MatchID == nil {
			return nil, fmt.Errorf("lobby %s started without a match: %w", code, ErrConflict)
		}
		match, err := s.Battles.Get(*lobby.MatchID)
		if err != nil {
			return nil, err
		}
		return &JoinResult{Match: match}, nil
	case models.LobbyWaiting:
		// joinable
	default:
		return nil, fmt.Errorf("lobby %s is closed: %w", code, ErrConflict)
	}

	for i := range lobby.Participants {
		if lobby.Participants[i].UserID == userID {
			return &JoinResult{Lobby: lobby}, nil
		}
	}
	if len(lobby.Participants) >= lobby.Capacity {
		return nil, fmt.Errorf("lobby %s is full: %w", code, ErrConflict)
	}

	participant := models.LobbyParticipant{
		ID:       uuid.NewString(),
		LobbyID:  lobby.ID,
		UserID:   userID,
		JoinedAt: time.Now(),
	}
	seated, err := s.addParticipant(lobby, &participant)
	if err != nil {
		return nil, err
	}
	if !seated {
		// Another join took the last seat after our read.
		return nil, fmt.Errorf("lobby %s is full: %w", code, ErrConflict)
	}
	lobby.Participants = append(lobby.Participants, participant)

	s.logger.Info("user joined lobby", zap.String("code", code), zap.String("user_id", userID))
	return &JoinResult{Lobby: lobby}, nil
}

// addParticipant inserts a member only while seats remain. The count guard
// runs inside the INSERT itself, so two joins racing for the last seat cannot
// both land.
func (s *LobbyService) addParticipant(lobby *models.Lobby, p *models.LobbyParticipant) (bool, error) {
	res := s.DB.Exec(
		`INSERT INTO lobby_participants (id, lobby_id, user_id, is_host, ready, joined_at)
		 SELECT ?, ?, ?, ?, ?, ?
		 WHERE (SELECT COUNT(*) FROM lobby_participants WHERE lobby_id = ?) < ?`,
		p.ID, p.LobbyID, p.UserID, p.IsHost, p.Ready, p.JoinedAt,
		lobby.ID, lobby.Capacity,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

// SetReady toggles the caller's ready flag.
func (s *LobbyService) SetReady(code, userID string) (*models.Lobby, error) {
	lobby, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if lobby.Status != models.LobbyWaiting {
		return nil, fmt.Errorf("lobby %s is not waiting: %w", code, ErrConflict)
	}

	for i := range lobby.Participants {
		p := &lobby.Participants[i]
		if p.UserID == userID {
			p.Ready = !p.Ready
			if err := s.DB.Model(&models.LobbyParticipant{}).
				Where("id = ?", p.ID).
				Update("ready", p.Ready).Error; err != nil {
				return nil, err
			}
			return lobby, nil
		}
	}
	return nil, fmt.Errorf("user %s is not in lobby %s: %w", userID, code, ErrForbidden)
}

// Start creates the lobby's match. Host-only, and only when the room is full
// and everyone is ready. The race is taken verbatim from the lobby, never
// re-derived from rating. The status flip is conditional so a double-tapped
// start button creates exactly one match.
func (s *LobbyService) Start(code, hostID string) (*models.BattleMatch, error) {
	lobby, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if lobby.HostID != hostID {
		return nil, fmt.Errorf("only the host can start lobby %s: %w", code, ErrForbidden)
	}
	if lobby.Status != models.LobbyWaiting {
		return nil, fmt.Errorf("lobby %s is not waiting: %w", code, ErrConflict)
	}
	if len(lobby.Participants) != lobby.Capacity {
		return nil, fmt.Errorf("lobby %s is not full (%d/%d): %w",
			code, len(lobby.Participants), lobby.Capacity, ErrConflict)
	}
	for _, p := range lobby.Participants {
		if !p.Ready {
			return nil, fmt.Errorf("participant %s is not ready: %w", p.UserID, ErrConflict)
		}
	}

	// The match races the host against the earliest non-host joiner; any
	// further participants follow along through the progress endpoint.
	var opponentID string
	for _, p := range lobby.Participants {
		if !p.IsHost {
			opponentID = p.UserID
			break
		}
	}
	if opponentID == "" {
		return nil, fmt.Errorf("lobby %s has no opponent for the host: %w", code, ErrConflict)
	}

	hostRec, err := s.Battles.Ratings.EnsureRecord(nil, lobby.HostID)
	if err != nil {
		return nil, err
	}
	oppRec, err := s.Battles.Ratings.EnsureRecord(nil, opponentID)
	if err != nil {
		return nil, err
	}

	match, err := s.Battles.CreatePvPMatch(lobby.HostID, hostRec.Rating, opponentID, oppRec.Rating, lobby.Race, lobby.Ranked)
	if err != nil {
		return nil, err
	}

	res := s.DB.Model(&models.Lobby{}).
		Where("id = ? AND status = ?", lobby.ID, models.LobbyWaiting).
		Updates(map[string]interface{}{
			"status":   models.LobbyInProgress,
			"match_id": match.ID,
		})
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// A concurrent start won; hand back its match instead of ours.
		fresh, err := s.Get(code)
		if err != nil {
			return nil, err
		}
		if fresh.MatchID != nil {
			return s.Battles.Get(*fresh.MatchID)
		}
		return nil, fmt.Errorf("lobby %s already started: %w", code, ErrConflict)
	}

	s.logger.Info("lobby started",
		zap.String("code", code),
		zap.String("match_id", match.ID),
		zap.String("host_id", lobby.HostID),
		zap.String("opponent_id", opponentID),
	)
	return match, nil
}

// Leave removes a participant. When the host leaves, the configured policy
// either promotes the earliest joiner or cancels the room.
func (s *LobbyService) Leave(code, userID string) (*models.Lobby, error) {
	lobby, err := s.Get(code)
	if err != nil {
		return nil, err
	}
	if lobby.Status != models.LobbyWaiting {
		return nil, fmt.Errorf("lobby %s is not waiting: %w", code, ErrConflict)
	}

	var leaving *models.LobbyParticipant
	for i := range lobby.Participants {
		if lobby.Participants[i].UserID == userID {
			leaving = &lobby.Participants[i]
			break
		}
	}
	if leaving == nil {
		return nil, fmt.Errorf("user %s is not in lobby %s: %w", userID, code, ErrForbidden)
	}

	if err := s.DB.Delete(&models.LobbyParticipant{}, "id = ?", leaving.ID).Error; err != nil {
		return nil, err
	}

	if leaving.IsHost {
		if err := s.handleHostDeparture(lobby, leaving.ID); err != nil {
			return nil, err
		}
	}

	s.logger.Info("user left lobby", zap.String("code", code), zap.String("user_id", userID))
	return s.Get(code)
}

func (s *LobbyService) handleHostDeparture(lobby *models.Lobby, departedID string) error {
	remaining := make([]models.LobbyParticipant, 0, len(lobby.Participants)-1)
	for _, p := range lobby.Participants {
		if p.ID != departedID {
			remaining = append(remaining, p)
		}
	}

	if s.HostLeavePolicy == HostLeaveCancel || len(remaining) == 0 {
		return s.DB.Model(&models.Lobby{}).
			Where("id = ?", lobby.ID).
			Update("status", models.LobbyCancelled).Error
	}

	// Promote the earliest joiner (participants are loaded oldest first).
	next := remaining[0]
	return s.DB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.LobbyParticipant{}).
			Where("id = ?", next.ID).
			Updates(map[string]interface{}{"is_host": true, "ready": true}).Error; err != nil {
			return err
		}
		return tx.Model(&models.Lobby{}).
			Where("id = ?", lobby.ID).
			Update("host_id", next.UserID).Error
	})
}
