package services

import (
	"fmt"
	"strings"
	"testing"

	"realty-server/models"
	"realty-server/storage"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", strings.ReplaceAll(t.Name(), "/", "_"))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("failed to open test db: %v", err)
	}
	storage.Migrate(db)
	return db
}

func createUser(t *testing.T, db *gorm.DB, firstName, role string) *models.User {
	t.Helper()
	active := true
	user := models.User{FirstName: firstName, LastName: "Test", Role: role, IsActive: &active}
	if err := db.Create(&user).Error; err != nil {
		t.Fatalf("failed to create user: %v", err)
	}
	return &user
}

func createProperty(t *testing.T, db *gorm.DB, hostID uint, title string) *models.Property {
	t.Helper()
	active := true
	property := models.Property{HostID: hostID, Title: title, City: "Nouakchott", IsActive: &active}
	if err := db.Create(&property).Error; err != nil {
		t.Fatalf("failed to create property: %v", err)
	}
	return &property
}

func participantOf(t *testing.T, db *gorm.DB, conversationID, userID uint) *models.ConversationParticipant {
	t.Helper()
	var p models.ConversationParticipant
	if err := db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).First(&p).Error; err != nil {
		t.Fatalf("participant %d of conversation %d not found: %v", userID, conversationID, err)
	}
	return &p
}

func newTestMessageService(db *gorm.DB) *MessageService {
	return NewMessageService(db, NewHub(NewMemoryPresence()), nil)
}
