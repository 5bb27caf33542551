package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/Paolafigueroah/system-eco-plataform-sub001/internal/domain"
	"github.com/Paolafigueroah/system-eco-plataform-sub001/pkg/database"
)

// GormChatRepository implements ChatRepository using GORM. It runs on
// every driver pkg/database supports.
type GormChatRepository struct {
	db  *gorm.DB
	now func() time.Time
}

// NewGormChatRepository creates a new GORM-based chat repository.
func NewGormChatRepository(db *gorm.DB) *GormChatRepository {
	return &GormChatRepository{
		db:  db,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// Migrate creates or updates the chat tables.
func (r *GormChatRepository) Migrate() error {
	return database.AutoMigrate(r.db, domain.Models()...)
}

// CreateUser creates a new user.
func (r *GormChatRepository) CreateUser(ctx context.Context, user *domain.User) error {
	user.ID = uuid.New().String()
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	if user.Roles == nil {
		user.Roles = []string{"user"}
	}

	model := domain.UserToModel(user)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return r.handleUserError(err)
	}

	user.CreatedAt = model.CreatedAt
	user.UpdatedAt = model.UpdatedAt
	return nil
}

// GetUserByID retrieves a user by ID.
func (r *GormChatRepository) GetUserByID(ctx context.Context, id string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// GetUserByEmail retrieves a user by email.
func (r *GormChatRepository) GetUserByEmail(ctx context.Context, email string) (*domain.User, error) {
	var model domain.UserModel
	if err := r.db.WithContext(ctx).First(&model, "email = ?", strings.ToLower(email)).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// ListUsersExcept returns every user but userID, ordered by display name.
func (r *GormChatRepository) ListUsersExcept(ctx context.Context, userID string) ([]domain.User, error) {
	var models []domain.UserModel
	if err := r.db.WithContext(ctx).
		Where("id <> ?", userID).
		Order("display_name ASC, username ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	users := make([]domain.User, 0, len(models))
	for i := range models {
		users = append(users, *models[i].ToDomain())
	}
	return users, nil
}

// GetUsersByIDs loads the given users keyed by ID. Unknown IDs are absent.
func (r *GormChatRepository) GetUsersByIDs(ctx context.Context, ids []string) (map[string]*domain.User, error) {
	out := make(map[string]*domain.User, len(ids))
	if len(ids) == 0 {
		return out, nil
	}

	var models []domain.UserModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	for i := range models {
		out[models[i].ID] = models[i].ToDomain()
	}
	return out, nil
}

// CreateConversation inserts a conversation for a normalized pair.
func (r *GormChatRepository) CreateConversation(ctx context.Context, conv *domain.Conversation) error {
	conv.ParticipantA, conv.ParticipantB = domain.NormalizePair(conv.ParticipantA, conv.ParticipantB)
	if conv.ID == "" {
		conv.ID = uuid.New().String()
	}

	model := &domain.ConversationModel{
		ID:           conv.ID,
		ParticipantA: conv.ParticipantA,
		ParticipantB: conv.ParticipantB,
	}
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		if database.IsUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}

	conv.CreatedAt = model.CreatedAt
	conv.UpdatedAt = model.UpdatedAt
	return nil
}

// GetConversation retrieves a conversation by ID.
func (r *GormChatRepository) GetConversation(ctx context.Context, id string) (*domain.Conversation, error) {
	var model domain.ConversationModel
	if err := r.db.WithContext(ctx).First(&model, "id = ?", id).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

// FindConversationByPair retrieves the conversation between two users in
// either order.
func (r *GormChatRepository) FindConversationByPair(ctx context.Context, userA, userB string) (*domain.Conversation, error) {
	a, b := domain.NormalizePair(userA, userB)

	var model domain.ConversationModel
	if err := r.db.WithContext(ctx).
		First(&model, "participant_a = ? AND participant_b = ?", a, b).Error; err != nil {
		return nil, notFound(err)
	}
	return model.ToDomain(), nil
}

type unreadRow struct {
	ConversationID string
	Unread         int
}

// ListConversations returns the conversations of userID, most recent first.
func (r *GormChatRepository) ListConversations(ctx context.Context, userID string) ([]domain.Conversation, error) {
	db := r.db.WithContext(ctx)

	var models []domain.ConversationModel
	if err := db.
		Where("participant_a = ? OR participant_b = ?", userID, userID).
		Order("updated_at DESC").
		Find(&models).Error; err != nil {
		return nil, err
	}
	if len(models) == 0 {
		return []domain.Conversation{}, nil
	}

	convIDs := make([]string, 0, len(models))
	otherIDs := make([]string, 0, len(models))
	for i := range models {
		convIDs = append(convIDs, models[i].ID)
		otherIDs = append(otherIDs, otherParticipant(&models[i], userID))
	}

	users, err := r.GetUsersByIDs(ctx, otherIDs)
	if err != nil {
		return nil, err
	}

	var rows []unreadRow
	if err := db.Model(&domain.MessageModel{}).
		Select("conversation_id, COUNT(*) AS unread").
		Where("conversation_id IN ? AND sender_id <> ? AND is_read = ?", convIDs, userID, false).
		Group("conversation_id").
		Scan(&rows).Error; err != nil {
		return nil, err
	}
	unread := make(map[string]int, len(rows))
	for _, row := range rows {
		unread[row.ConversationID] = row.Unread
	}

	out := make([]domain.Conversation, 0, len(models))
	for i := range models {
		conv := models[i].ToDomain()
		if u, ok := users[otherParticipant(&models[i], userID)]; ok {
			summary := u.Summary()
			conv.Counterpart = &summary
		}
		conv.UnreadCount = unread[conv.ID]
		out = append(out, *conv)
	}
	return out, nil
}

// CreateMessage inserts msg and moves the conversation preview forward.
func (r *GormChatRepository) CreateMessage(ctx context.Context, msg *domain.Message) (*domain.Conversation, error) {
	msg.ID = uuid.New().String()
	msg.CreatedAt = r.now()
	msg.IsRead = false
	msg.DeliveryState = domain.DeliveryConfirmed

	var conv domain.ConversationModel
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(domain.MessageToModel(msg)).Error; err != nil {
			return err
		}

		preview := domain.Preview(msg.Content)
		res := tx.Model(&domain.ConversationModel{}).
			Where("id = ?", msg.ConversationID).
			Updates(map[string]interface{}{
				"last_message_preview": preview,
				"last_message_at":      msg.CreatedAt,
				"updated_at":           msg.CreatedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return domain.ErrNotFound
		}

		return tx.First(&conv, "id = ?", msg.ConversationID).Error
	})
	if err != nil {
		return nil, err
	}
	return conv.ToDomain(), nil
}

// ListMessages returns the messages of a conversation in send order.
func (r *GormChatRepository) ListMessages(ctx context.Context, conversationID string) ([]domain.Message, error) {
	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).
		Where("conversation_id = ?", conversationID).
		Order("created_at ASC, id ASC").
		Find(&models).Error; err != nil {
		return nil, err
	}

	out := make([]domain.Message, 0, len(models))
	for i := range models {
		out = append(out, *models[i].ToDomain())
	}
	return out, nil
}

// MarkRead flags the unread messages from the other participant.
func (r *GormChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&domain.MessageModel{}).
			Where("conversation_id = ? AND sender_id <> ? AND is_read = ?", conversationID, readerID, false).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&domain.MessageModel{}).
			Where("id IN ?", ids).
			Update("is_read", true).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func otherParticipant(m *domain.ConversationModel, userID string) string {
	if m.ParticipantA == userID {
		return m.ParticipantB
	}
	return m.ParticipantA
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.ErrNotFound
	}
	return err
}

// handleUserError converts unique violations on users to domain errors.
func (r *GormChatRepository) handleUserError(err error) error {
	if !database.IsUniqueViolation(err) {
		return err
	}
	errStr := err.Error()
	if strings.Contains(errStr, "email") {
		return domain.ErrEmailExists
	}
	if strings.Contains(errStr, "username") {
		return domain.ErrUsernameExists
	}
	return domain.ErrConflict
}
