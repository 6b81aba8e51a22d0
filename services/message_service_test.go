package services

import (
	"errors"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/nexchat-app/nexchat/config"
	"github.com/nexchat-app/nexchat/db"
	apiError "github.com/nexchat-app/nexchat/errors"
	"github.com/nexchat-app/nexchat/models"
	"github.com/nexchat-app/nexchat/services/encrypt"
)

// ---- in-memory repository fakes ----

type fakeAuthRepo struct {
	users     map[uuid.UUID]*models.User
	refresh   map[string]*models.RefreshToken
	blacklist map[string]bool
}

func newFakeAuthRepo(users ...*models.User) *fakeAuthRepo {
	repo := &fakeAuthRepo{
		users:     make(map[uuid.UUID]*models.User),
		refresh:   make(map[string]*models.RefreshToken),
		blacklist: make(map[string]bool),
	}
	for _, u := range users {
		repo.users[u.ID] = u
	}
	return repo
}

func (f *fakeAuthRepo) CreateUser(user *models.User) (*models.User, error) {
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	f.users[user.ID] = user
	return user, nil
}

func (f *fakeAuthRepo) FindUserByEmail(email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAuthRepo) FindUserByID(id uuid.UUID) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAuthRepo) FindUsersByIDs(ids []uuid.UUID) ([]models.User, error) {
	var out []models.User
	for _, id := range ids {
		if u, ok := f.users[id]; ok {
			out = append(out, *u)
		}
	}
	return out, nil
}

func (f *fakeAuthRepo) IsEmailExist(email string) error {
	if _, err := f.FindUserByEmail(email); err == nil {
		return errors.New("email already in use")
	}
	return nil
}

func (f *fakeAuthRepo) UpdateUserOnlineStatus(userID uuid.UUID, online bool) error {
	if u, ok := f.users[userID]; ok {
		u.Online = online
	}
	return nil
}

func (f *fakeAuthRepo) AddToBlackList(blacklist *models.Blacklist) error {
	f.blacklist[blacklist.Token] = true
	return nil
}

func (f *fakeAuthRepo) IsTokenInBlacklist(token string) bool {
	return f.blacklist[token]
}

func (f *fakeAuthRepo) CreateRefreshToken(token *models.RefreshToken) error {
	f.refresh[token.Token] = token
	return nil
}

func (f *fakeAuthRepo) FindRefreshToken(token string) (*models.RefreshToken, error) {
	if rt, ok := f.refresh[token]; ok {
		return rt, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeAuthRepo) DeleteRefreshToken(token string) error {
	delete(f.refresh, token)
	return nil
}

type fakeConversationRepo struct {
	conversations map[string]*models.Conversation
}

func newFakeConversationRepo() *fakeConversationRepo {
	return &fakeConversationRepo{conversations: make(map[string]*models.Conversation)}
}

func (f *fakeConversationRepo) GetOrCreate(userA, userB uuid.UUID) (*models.Conversation, error) {
	id := models.CanonicalConversationID(userA, userB)
	if c, ok := f.conversations[id]; ok {
		return c, nil
	}
	key, err := encrypt.GenerateKey()
	if err != nil {
		return nil, err
	}
	first, second := models.SortedPair(userA, userB)
	c := &models.Conversation{
		Model:          models.Model{ID: uuid.New()},
		ConversationID: id,
		UserAID:        first,
		UserBID:        second,
		EncryptionKey:  key,
		IsActive:       true,
	}
	f.conversations[id] = c
	return c, nil
}

func (f *fakeConversationRepo) FindByParticipants(userA, userB uuid.UUID) (*models.Conversation, error) {
	if c, ok := f.conversations[models.CanonicalConversationID(userA, userB)]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConversationRepo) GetWithKey(conversationID string) (*models.Conversation, error) {
	if c, ok := f.conversations[conversationID]; ok {
		return c, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeConversationRepo) UpdateLastMessage(conversationID string, messageID uuid.UUID, at time.Time) error {
	c, ok := f.conversations[conversationID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.LastMessageID = &messageID
	c.LastMessageAt = at
	return nil
}

func (f *fakeConversationRepo) ListForUser(userID uuid.UUID, page, limit int) ([]models.Conversation, int64, error) {
	var out []models.Conversation
	for _, c := range f.conversations {
		if c.IsActive && (c.UserAID == userID || c.UserBID == userID) {
			out = append(out, *c)
		}
	}
	return out, int64(len(out)), nil
}

type fakeGroupRepo struct {
	groups map[uuid.UUID]*models.Group
}

func newFakeGroupRepo(groups ...*models.Group) *fakeGroupRepo {
	repo := &fakeGroupRepo{groups: make(map[uuid.UUID]*models.Group)}
	for _, g := range groups {
		repo.groups[g.ID] = g
	}
	return repo
}

func (f *fakeGroupRepo) CreateGroup(group *models.Group) error {
	if group.ID == uuid.Nil {
		group.ID = uuid.New()
	}
	// Mirror gorm's association handling: inserting the group backfills
	// GroupID on its participant rows.
	for i := range group.Participants {
		group.Participants[i].GroupID = group.ID
	}
	// Store a copy: the caller scrubbing its in-memory object must not
	// reach back into the "row".
	stored := *group
	f.groups[group.ID] = &stored
	return nil
}

func (f *fakeGroupRepo) FindGroupByID(id uuid.UUID) (*models.Group, error) {
	if g, ok := f.groups[id]; ok {
		clean := *g
		clean.EncryptionKey = ""
		return &clean, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeGroupRepo) FindGroupWithKey(id uuid.UUID) (*models.Group, error) {
	if g, ok := f.groups[id]; ok {
		return g, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeGroupRepo) UpdateGroupFields(id uuid.UUID, fields map[string]interface{}) error {
	g, ok := f.groups[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	if v, ok := fields["name"]; ok {
		g.Name = v.(string)
	}
	if v, ok := fields["description"]; ok {
		g.Description = v.(string)
	}
	if v, ok := fields["avatar"]; ok {
		g.Avatar = v.(string)
	}
	if v, ok := fields["is_private"]; ok {
		g.IsPrivate = v.(bool)
	}
	return nil
}

func (f *fakeGroupRepo) SaveParticipant(p *models.GroupParticipant) error {
	g, ok := f.groups[p.GroupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	for i := range g.Participants {
		if g.Participants[i].UserID == p.UserID {
			g.Participants[i].Role = p.Role
			g.Participants[i].IsActive = p.IsActive
			return nil
		}
	}
	g.Participants = append(g.Participants, *p)
	return nil
}

func (f *fakeGroupRepo) ListGroupsForUser(userID uuid.UUID) ([]models.Group, error) {
	var out []models.Group
	for _, g := range f.groups {
		if g.IsActive && g.IsParticipant(userID) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (f *fakeGroupRepo) UpdateLastMessage(groupID uuid.UUID, messageID uuid.UUID, at time.Time) error {
	g, ok := f.groups[groupID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	g.LastMessageID = &messageID
	g.LastMessageAt = at
	return nil
}

func (f *fakeGroupRepo) SoftDeleteGroup(id uuid.UUID) error {
	if g, ok := f.groups[id]; ok {
		g.IsActive = false
	}
	return nil
}

type fakeMessageRepo struct {
	messages []*models.Message
}

func (f *fakeMessageRepo) SaveMessage(message *models.Message) error {
	if message.ID == uuid.Nil {
		message.ID = uuid.New()
	}
	message.CreatedAt = time.Now()
	f.messages = append(f.messages, message)
	return nil
}

func (f *fakeMessageRepo) FindMessageByID(id uuid.UUID) (*models.Message, error) {
	for _, m := range f.messages {
		if m.ID == id {
			return m, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMessageRepo) MarkMessageRead(messageID, readerID uuid.UUID) (*models.Message, error) {
	for _, m := range f.messages {
		if m.ID != messageID {
			continue
		}
		if m.ReceiverID == nil || *m.ReceiverID != readerID || m.IsDeleted {
			return nil, gorm.ErrRecordNotFound
		}
		if m.IsRead {
			return m, db.ErrAlreadyRead
		}
		now := time.Now()
		m.IsRead = true
		m.ReadAt = &now
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMessageRepo) MarkConversationRead(conversationID string, readerID uuid.UUID) error {
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.ReceiverID != nil && *m.ReceiverID == readerID && !m.IsRead {
			now := time.Now()
			m.IsRead = true
			m.ReadAt = &now
		}
	}
	return nil
}

func (f *fakeMessageRepo) SoftDeleteMessage(messageID, senderID uuid.UUID) (*models.Message, error) {
	for _, m := range f.messages {
		if m.ID != messageID {
			continue
		}
		if m.SenderID != senderID {
			return nil, gorm.ErrRecordNotFound
		}
		if m.IsDeleted {
			return m, db.ErrAlreadyDeleted
		}
		now := time.Now()
		m.IsDeleted = true
		m.DeletedAt = &now
		return m, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// newest-first page, matching the storage query.
func (f *fakeMessageRepo) pageOf(match func(*models.Message) bool, page, limit int) ([]models.Message, int64) {
	var all []*models.Message
	for _, m := range f.messages {
		if match(m) {
			all = append(all, m)
		}
	}
	total := int64(len(all))

	var newest []models.Message
	for i := len(all) - 1; i >= 0; i-- {
		newest = append(newest, *all[i])
	}

	offset := (page - 1) * limit
	if offset >= len(newest) {
		return nil, total
	}
	end := offset + limit
	if end > len(newest) {
		end = len(newest)
	}
	return newest[offset:end], total
}

func (f *fakeMessageRepo) GetConversationMessages(conversationID string, page, limit int) ([]models.Message, int64, error) {
	messages, total := f.pageOf(func(m *models.Message) bool {
		return m.ConversationID == conversationID && !m.IsDeleted
	}, page, limit)
	return messages, total, nil
}

func (f *fakeMessageRepo) GetGroupMessages(groupID uuid.UUID, page, limit int) ([]models.Message, int64, error) {
	messages, total := f.pageOf(func(m *models.Message) bool {
		return m.GroupID != nil && *m.GroupID == groupID && !m.IsDeleted
	}, page, limit)
	return messages, total, nil
}

func (f *fakeMessageRepo) GetLastConversationMessage(conversationID string) (*models.Message, error) {
	for i := len(f.messages) - 1; i >= 0; i-- {
		m := f.messages[i]
		if m.ConversationID == conversationID && !m.IsDeleted {
			clean := *m
			clean.EncryptedContent = ""
			return &clean, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (f *fakeMessageRepo) UnreadCount(userID uuid.UUID) (int64, error) {
	var count int64
	for _, m := range f.messages {
		if m.ReceiverID != nil && *m.ReceiverID == userID && m.MessageScope == models.ScopePrivate && !m.IsRead && !m.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) UnreadCountInConversation(conversationID string, readerID uuid.UUID) (int64, error) {
	var count int64
	for _, m := range f.messages {
		if m.ConversationID == conversationID && m.ReceiverID != nil && *m.ReceiverID == readerID && !m.IsRead && !m.IsDeleted {
			count++
		}
	}
	return count, nil
}

func (f *fakeMessageRepo) SearchMessages(userID uuid.UUID, query string, page, limit int) ([]models.Message, int64, error) {
	lowered := strings.ToLower(query)
	messages, total := f.pageOf(func(m *models.Message) bool {
		if m.MessageScope != models.ScopePrivate || m.IsDeleted {
			return false
		}
		if m.SenderID != userID && (m.ReceiverID == nil || *m.ReceiverID != userID) {
			return false
		}
		return strings.Contains(strings.ToLower(m.Content), lowered)
	}, page, limit)
	for i := range messages {
		messages[i].EncryptedContent = ""
	}
	return messages, total, nil
}

type notification struct {
	userID  uuid.UUID
	event   string
	payload interface{}
}

type groupNotification struct {
	participantIDs []uuid.UUID
	excludeUserID  uuid.UUID
	event          string
	payload        interface{}
}

type fakeNotifier struct {
	sent      []notification
	groupSent []groupNotification
}

func (f *fakeNotifier) SendToUser(userID uuid.UUID, event string, payload interface{}) {
	f.sent = append(f.sent, notification{userID: userID, event: event, payload: payload})
}

func (f *fakeNotifier) SendToGroup(participantIDs []uuid.UUID, excludeUserID uuid.UUID, event string, payload interface{}) {
	f.groupSent = append(f.groupSent, groupNotification{
		participantIDs: participantIDs,
		excludeUserID:  excludeUserID,
		event:          event,
		payload:        payload,
	})
}

// ---- fixture ----

type messageServiceFixture struct {
	service          MessageService
	authRepo         *fakeAuthRepo
	conversationRepo *fakeConversationRepo
	groupRepo        *fakeGroupRepo
	messageRepo      *fakeMessageRepo
	notifier         *fakeNotifier

	alice *models.User
	bob   *models.User
	carol *models.User
}

func newMessageServiceFixture(t *testing.T) *messageServiceFixture {
	t.Helper()

	alice := &models.User{Model: models.Model{ID: uuid.New()}, Name: "Alice", Email: "alice@example.com"}
	bob := &models.User{Model: models.Model{ID: uuid.New()}, Name: "Bob", Email: "bob@example.com"}
	carol := &models.User{Model: models.Model{ID: uuid.New()}, Name: "Carol", Email: "carol@example.com"}

	fix := &messageServiceFixture{
		authRepo:         newFakeAuthRepo(alice, bob, carol),
		conversationRepo: newFakeConversationRepo(),
		groupRepo:        newFakeGroupRepo(),
		messageRepo:      &fakeMessageRepo{},
		notifier:         &fakeNotifier{},
		alice:            alice,
		bob:              bob,
		carol:            carol,
	}
	fix.service = NewMessageService(
		fix.messageRepo,
		fix.conversationRepo,
		fix.groupRepo,
		fix.authRepo,
		fix.notifier,
		&config.Config{},
	)
	return fix
}

func (fix *messageServiceFixture) sendPrivate(t *testing.T, from *models.User, to *models.User, content string) *models.Message {
	t.Helper()
	message, apiErr := fix.service.SendPrivateMessage(from.ID, &models.SendMessageRequest{
		Receiver: to.ID.String(),
		Content:  content,
	})
	require.Nil(t, apiErr)
	return message
}

func (fix *messageServiceFixture) newGroup(t *testing.T, admin *models.User, members ...*models.User) *models.Group {
	t.Helper()
	key, err := encrypt.GenerateKey()
	require.NoError(t, err)

	group := &models.Group{
		Model:         models.Model{ID: uuid.New()},
		Name:          "test group",
		AdminID:       admin.ID,
		EncryptionKey: key,
		IsActive:      true,
	}
	for _, m := range members {
		group.AddParticipant(m.ID, models.RoleMember)
	}
	require.NoError(t, fix.groupRepo.CreateGroup(group))
	return group
}

// ---- tests ----

func TestSendPrivateMessage(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	message, apiErr := fix.service.SendPrivateMessage(fix.alice.ID, &models.SendMessageRequest{
		Receiver: fix.bob.ID.String(),
		Content:  "hello bob",
	})
	req.Nil(apiErr)
	req.Equal("hello bob", message.Content)
	req.Equal(fix.alice.ID, message.SenderID)
	req.Equal(fix.bob.ID, *message.ReceiverID)
	req.Equal(models.ScopePrivate, message.MessageScope)
	req.Equal(models.TypeText, message.MessageType)
	req.Equal(models.CanonicalConversationID(fix.alice.ID, fix.bob.ID), message.ConversationID)

	// The response never carries ciphertext; the stored row always does.
	req.Empty(message.EncryptedContent)
	stored := fix.messageRepo.messages[0]
	req.NotEmpty(stored.EncryptedContent)
	req.NotEqual(stored.Content, stored.EncryptedContent)

	conversation, err := fix.conversationRepo.GetWithKey(message.ConversationID)
	req.NoError(err)
	plaintext, err := encrypt.Decrypt(stored.EncryptedContent, conversation.EncryptionKey)
	req.NoError(err)
	req.Equal("hello bob", plaintext)

	// Last-message pointer advanced.
	req.NotNil(conversation.LastMessageID)
	req.Equal(message.ID, *conversation.LastMessageID)

	// Delivery fan-out targets the receiver only.
	req.Len(fix.notifier.sent, 1)
	req.Equal(fix.bob.ID, fix.notifier.sent[0].userID)
	req.Equal(EventMessage, fix.notifier.sent[0].event)

	// Sender display data is attached for rendering.
	req.NotNil(message.Sender)
	req.Equal("Alice", message.Sender.Name)
}

func TestSendPrivateMessageBothDirectionsShareConversation(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	first := fix.sendPrivate(t, fix.alice, fix.bob, "hi")
	second := fix.sendPrivate(t, fix.bob, fix.alice, "hi back")

	req.Equal(first.ConversationID, second.ConversationID)
	req.Len(fix.conversationRepo.conversations, 1)
}

func TestSendPrivateMessageUnknownReceiver(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	_, apiErr := fix.service.SendPrivateMessage(fix.alice.ID, &models.SendMessageRequest{
		Receiver: uuid.New().String(),
		Content:  "hello",
	})
	req.NotNil(apiErr)
	req.Equal(http.StatusNotFound, apiErr.Status)
	req.Empty(fix.messageRepo.messages)
	req.Empty(fix.notifier.sent)
}

func TestSendPrivateMessageInvalidType(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	_, apiErr := fix.service.SendPrivateMessage(fix.alice.ID, &models.SendMessageRequest{
		Receiver:    fix.bob.ID.String(),
		Content:     "hello",
		MessageType: "carrier-pigeon",
	})
	req.NotNil(apiErr)
	req.Equal(http.StatusBadRequest, apiErr.Status)
}

func TestSendGroupMessage(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	group := fix.newGroup(t, fix.alice, fix.bob, fix.carol)

	message, apiErr := fix.service.SendGroupMessage(fix.bob.ID, &models.SendGroupMessageRequest{
		GroupID: group.ID.String(),
		Content: "hello everyone",
	})
	req.Nil(apiErr)
	req.Equal(models.ScopeGroup, message.MessageScope)
	req.Equal(group.ID, *message.GroupID)
	req.Empty(message.EncryptedContent)

	stored := fix.messageRepo.messages[0]
	plaintext, err := encrypt.Decrypt(stored.EncryptedContent, group.EncryptionKey)
	req.NoError(err)
	req.Equal("hello everyone", plaintext)

	// Fan-out covers every active participant, excluding the sender.
	req.Len(fix.notifier.groupSent, 1)
	sent := fix.notifier.groupSent[0]
	req.Equal(EventGroupMessage, sent.event)
	req.Equal(fix.bob.ID, sent.excludeUserID)
	req.ElementsMatch([]uuid.UUID{fix.alice.ID, fix.bob.ID, fix.carol.ID}, sent.participantIDs)
}

func TestSendGroupMessageNotAMember(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	group := fix.newGroup(t, fix.alice, fix.bob)

	_, apiErr := fix.service.SendGroupMessage(fix.carol.ID, &models.SendGroupMessageRequest{
		GroupID: group.ID.String(),
		Content: "let me in",
	})
	req.NotNil(apiErr)
	req.Equal(http.StatusUnauthorized, apiErr.Status)
	req.Empty(fix.messageRepo.messages)
}

func TestSendGroupMessageInactiveGroup(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	group := fix.newGroup(t, fix.alice, fix.bob)
	req.NoError(fix.groupRepo.SoftDeleteGroup(group.ID))

	_, apiErr := fix.service.SendGroupMessage(fix.alice.ID, &models.SendGroupMessageRequest{
		GroupID: group.ID.String(),
		Content: "anyone there?",
	})
	req.NotNil(apiErr)
	req.Equal(http.StatusNotFound, apiErr.Status)
}

func TestGetConversationMessages(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	fix.sendPrivate(t, fix.alice, fix.bob, "first")
	fix.sendPrivate(t, fix.bob, fix.alice, "second")
	fix.sendPrivate(t, fix.alice, fix.bob, "third")

	messages, pagination, apiErr := fix.service.GetConversationMessages(fix.bob.ID, fix.alice.ID, 1, 50)
	req.Nil(apiErr)
	req.Equal(int64(3), pagination.Total)

	// Oldest-first within the page, plaintext restored, no ciphertext.
	req.Len(messages, 3)
	req.Equal("first", messages[0].Content)
	req.Equal("second", messages[1].Content)
	req.Equal("third", messages[2].Content)
	for _, m := range messages {
		req.Empty(m.EncryptedContent)
	}

	// Fetching marks messages addressed to the fetcher as read.
	unread, err := fix.messageRepo.UnreadCount(fix.bob.ID)
	req.NoError(err)
	req.Zero(unread)

	// Messages the fetcher sent stay unread for the other side.
	unread, err = fix.messageRepo.UnreadCount(fix.alice.ID)
	req.NoError(err)
	req.Equal(int64(1), unread)
}

func TestGetConversationMessagesPagination(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	for i := 0; i < 5; i++ {
		fix.sendPrivate(t, fix.alice, fix.bob, "message "+uuid.New().String())
	}

	messages, pagination, apiErr := fix.service.GetConversationMessages(fix.bob.ID, fix.alice.ID, 1, 2)
	req.Nil(apiErr)
	req.Len(messages, 2)
	req.Equal(int64(5), pagination.Total)
	req.Equal(int64(3), pagination.Pages)

	// Page 1 holds the newest two, presented oldest-first.
	req.True(messages[0].CreatedAt.Before(messages[1].CreatedAt) || messages[0].CreatedAt.Equal(messages[1].CreatedAt))
}

func TestGetConversationMessagesUnreadableFallback(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	fix.sendPrivate(t, fix.alice, fix.bob, "good message")
	fix.sendPrivate(t, fix.alice, fix.bob, "to be corrupted")

	// Corrupt the stored ciphertext of the second message.
	fix.messageRepo.messages[1].EncryptedContent = "bm90IGEgdmFsaWQgdG9rZW4="

	messages, _, apiErr := fix.service.GetConversationMessages(fix.bob.ID, fix.alice.ID, 1, 50)
	req.Nil(apiErr)
	req.Len(messages, 2)
	req.Equal("good message", messages[0].Content)
	req.Equal(UnreadablePlaceholder, messages[1].Content)
}

func TestGetGroupMessagesRequiresMembership(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	group := fix.newGroup(t, fix.alice, fix.bob)

	_, _, apiErr := fix.service.GetGroupMessages(fix.carol.ID, group.ID, 1, 50)
	req.NotNil(apiErr)
	req.Equal(http.StatusUnauthorized, apiErr.Status)
}

func TestGetGroupMessages(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	group := fix.newGroup(t, fix.alice, fix.bob)
	_, apiErr := fix.service.SendGroupMessage(fix.alice.ID, &models.SendGroupMessageRequest{
		GroupID: group.ID.String(),
		Content: "welcome",
	})
	req.Nil(apiErr)

	messages, pagination, apiErr := fix.service.GetGroupMessages(fix.bob.ID, group.ID, 1, 50)
	req.Nil(apiErr)
	req.Equal(int64(1), pagination.Total)
	req.Len(messages, 1)
	req.Equal("welcome", messages[0].Content)
	req.Empty(messages[0].EncryptedContent)
}

func TestMarkMessageAsReadIdempotent(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	message := fix.sendPrivate(t, fix.alice, fix.bob, "read me")
	fix.notifier.sent = nil

	first, apiErr := fix.service.MarkMessageAsRead(fix.bob.ID, message.ID)
	req.Nil(apiErr)
	req.True(first.IsRead)
	req.NotNil(first.ReadAt)
	firstReadAt := *first.ReadAt

	// The sender is told their message was read.
	req.Len(fix.notifier.sent, 1)
	req.Equal(fix.alice.ID, fix.notifier.sent[0].userID)
	req.Equal(EventMessageRead, fix.notifier.sent[0].event)

	// Second call reports AlreadyProcessed and keeps the original read_at.
	second, apiErr := fix.service.MarkMessageAsRead(fix.bob.ID, message.ID)
	req.Equal(apiError.ErrAlreadyProcessed, apiErr)
	req.NotNil(second)
	req.Equal(firstReadAt, *second.ReadAt)
	req.Len(fix.notifier.sent, 1)
}

func TestMarkMessageAsReadWrongReceiver(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	message := fix.sendPrivate(t, fix.alice, fix.bob, "not for carol")

	_, apiErr := fix.service.MarkMessageAsRead(fix.carol.ID, message.ID)
	req.NotNil(apiErr)
	req.Equal(http.StatusNotFound, apiErr.Status)
}

func TestDeleteMessageSenderOnly(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	message := fix.sendPrivate(t, fix.alice, fix.bob, "delete me")

	// The receiver cannot delete the sender's message.
	_, apiErr := fix.service.DeleteMessage(fix.bob.ID, message.ID)
	req.NotNil(apiErr)
	req.Equal(http.StatusNotFound, apiErr.Status)

	deleted, apiErr := fix.service.DeleteMessage(fix.alice.ID, message.ID)
	req.Nil(apiErr)
	req.True(deleted.IsDeleted)
	req.NotNil(deleted.DeletedAt)

	// Second delete reports AlreadyProcessed.
	_, apiErr = fix.service.DeleteMessage(fix.alice.ID, message.ID)
	req.Equal(apiError.ErrAlreadyProcessed, apiErr)
}

func TestDeletedMessagesExcludedFromFetch(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	fix.sendPrivate(t, fix.alice, fix.bob, "keep")
	message := fix.sendPrivate(t, fix.alice, fix.bob, "remove")

	_, apiErr := fix.service.DeleteMessage(fix.alice.ID, message.ID)
	req.Nil(apiErr)

	messages, pagination, apiErr := fix.service.GetConversationMessages(fix.bob.ID, fix.alice.ID, 1, 50)
	req.Nil(apiErr)
	req.Equal(int64(1), pagination.Total)
	req.Len(messages, 1)
	req.Equal("keep", messages[0].Content)
}

func TestGetUnreadCount(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	fix.sendPrivate(t, fix.alice, fix.bob, "one")
	fix.sendPrivate(t, fix.alice, fix.bob, "two")
	fix.sendPrivate(t, fix.carol, fix.bob, "three")

	count, apiErr := fix.service.GetUnreadCount(fix.bob.ID)
	req.Nil(apiErr)
	req.Equal(int64(3), count)

	count, apiErr = fix.service.GetUnreadCount(fix.alice.ID)
	req.Nil(apiErr)
	req.Zero(count)
}

func TestSearchMessages(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	fix.sendPrivate(t, fix.alice, fix.bob, "the quarterly report is ready")
	fix.sendPrivate(t, fix.bob, fix.alice, "thanks, reading the report now")
	fix.sendPrivate(t, fix.alice, fix.carol, "report for carol")

	messages, pagination, apiErr := fix.service.SearchMessages(fix.bob.ID, "report", 1, 50)
	req.Nil(apiErr)
	req.Equal(int64(2), pagination.Total)
	req.Len(messages, 2)
	for _, m := range messages {
		req.True(m.SenderID == fix.bob.ID || (m.ReceiverID != nil && *m.ReceiverID == fix.bob.ID))
	}
}

func TestSearchMessagesEmptyQuery(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	_, _, apiErr := fix.service.SearchMessages(fix.bob.ID, "", 1, 50)
	req.NotNil(apiErr)
	req.Equal(http.StatusBadRequest, apiErr.Status)
}

func TestGetConversations(t *testing.T) {
	fix := newMessageServiceFixture(t)
	req := require.New(t)

	fix.sendPrivate(t, fix.alice, fix.bob, "hey bob")
	fix.sendPrivate(t, fix.carol, fix.bob, "hey from carol")

	summaries, pagination, apiErr := fix.service.GetConversations(fix.bob.ID, 1, 50)
	req.Nil(apiErr)
	req.Equal(int64(2), pagination.Total)
	req.Len(summaries, 2)

	byPartner := make(map[uuid.UUID]models.ConversationSummary)
	for _, s := range summaries {
		byPartner[s.OtherUser.ID] = s
	}

	aliceThread, ok := byPartner[fix.alice.ID]
	req.True(ok)
	req.Equal("Alice", aliceThread.OtherUser.Name)
	req.Equal(int64(1), aliceThread.UnreadCount)
	req.NotNil(aliceThread.LastMessage)
	req.Empty(aliceThread.LastMessage.EncryptedContent)

	_, ok = byPartner[fix.carol.ID]
	req.True(ok)
}
