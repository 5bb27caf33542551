package domain

import (
	"time"

	"gorm.io/gorm"
)

// UserModel is the GORM model for users table.
type UserModel struct {
	ID           string         `gorm:"type:varchar(36);primaryKey"`
	Email        string         `gorm:"type:varchar(255);uniqueIndex;not null"`
	Username     string         `gorm:"type:varchar(50);uniqueIndex;not null"`
	DisplayName  string         `gorm:"type:varchar(100)"`
	PasswordHash string         `gorm:"type:varchar(255);not null"`
	Roles        []string       `gorm:"type:text;serializer:json"`
	CreatedAt    time.Time      `gorm:"autoCreateTime"`
	UpdatedAt    time.Time      `gorm:"autoUpdateTime"`
	DeletedAt    gorm.DeletedAt `gorm:"index"`
}

func (UserModel) TableName() string {
	return "users"
}

// ToDomain converts UserModel to domain User.
func (m *UserModel) ToDomain() *User {
	return &User{
		ID:           m.ID,
		Email:        m.Email,
		Username:     m.Username,
		DisplayName:  m.DisplayName,
		PasswordHash: m.PasswordHash,
		Roles:        m.Roles,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
	}
}

// UserToModel converts domain User to UserModel.
func UserToModel(u *User) *UserModel {
	return &UserModel{
		ID:           u.ID,
		Email:        u.Email,
		Username:     u.Username,
		DisplayName:  u.DisplayName,
		PasswordHash: u.PasswordHash,
		Roles:        u.Roles,
		CreatedAt:    u.CreatedAt,
		UpdatedAt:    u.UpdatedAt,
	}
}

// ConversationModel is the GORM model for conversations table. The
// composite unique index makes the normalized pair unique.
type ConversationModel struct {
	ID                 string     `gorm:"type:varchar(36);primaryKey"`
	ParticipantA       string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversation_pair,priority:1;index"`
	ParticipantB       string     `gorm:"type:varchar(36);not null;uniqueIndex:idx_conversation_pair,priority:2;index"`
	LastMessagePreview *string    `gorm:"type:varchar(400)"`
	LastMessageAt      *time.Time `gorm:"index"`
	CreatedAt          time.Time  `gorm:"autoCreateTime"`
	UpdatedAt          time.Time  `gorm:"autoUpdateTime"`
}

func (ConversationModel) TableName() string {
	return "conversations"
}

func (m *ConversationModel) ToDomain() *Conversation {
	return &Conversation{
		ID:                 m.ID,
		ParticipantA:       m.ParticipantA,
		ParticipantB:       m.ParticipantB,
		LastMessagePreview: m.LastMessagePreview,
		LastMessageAt:      m.LastMessageAt,
		CreatedAt:          m.CreatedAt,
		UpdatedAt:          m.UpdatedAt,
	}
}

// MessageModel is the GORM model for messages table.
type MessageModel struct {
	ID             string    `gorm:"type:varchar(36);primaryKey"`
	ConversationID string    `gorm:"type:varchar(36);not null;index:idx_message_conversation_time,priority:1"`
	SenderID       string    `gorm:"type:varchar(36);not null"`
	Content        string    `gorm:"type:text;not null"`
	ClientRef      string    `gorm:"type:varchar(40);index"`
	IsRead         bool      `gorm:"not null;default:false"`
	CreatedAt      time.Time `gorm:"not null;index:idx_message_conversation_time,priority:2"`
}

func (MessageModel) TableName() string {
	return "messages"
}

// ToDomain converts a stored row. Stored messages are always confirmed.
func (m *MessageModel) ToDomain() *Message {
	return &Message{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		CreatedAt:      m.CreatedAt,
		IsRead:         m.IsRead,
		DeliveryState:  DeliveryConfirmed,
		ClientRef:      m.ClientRef,
	}
}

// MessageToModel converts domain Message to MessageModel.
func MessageToModel(msg *Message) *MessageModel {
	return &MessageModel{
		ID:             msg.ID,
		ConversationID: msg.ConversationID,
		SenderID:       msg.SenderID,
		Content:        msg.Content,
		ClientRef:      msg.ClientRef,
		IsRead:         msg.IsRead,
		CreatedAt:      msg.CreatedAt,
	}
}

// Models lists every table for auto-migration.
func Models() []interface{} {
	return []interface{}{&UserModel{}, &ConversationModel{}, &MessageModel{}}
}
