package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/anonto42/questlog/backend/internal/events"
	"github.com/anonto42/questlog/backend/internal/media"
	"github.com/anonto42/questlog/backend/internal/models"
	"github.com/anonto42/questlog/backend/internal/repositories"
	"github.com/labstack/echo/v4"
)

// QuestHandler handles quests: shared goals with a creator, participants and progress.
type QuestHandler struct {
	questRepository repositories.QuestRepository
	uploader        *media.Uploader
	publisher       events.Publisher
	views           views
	perPage         int
}

func NewQuestHandler(questRepo repositories.QuestRepository, uploader *media.Uploader, publisher events.Publisher, perPage int) *QuestHandler {
	return &QuestHandler{
		questRepository: questRepo,
		uploader:        uploader,
		publisher:       publisher,
		views:           views{uploader: uploader},
		perPage:         perPage,
	}
}

func (h *QuestHandler) RegisterQuestRoutes(g *echo.Group, uploadLimit echo.MiddlewareFunc) {
	g.GET("/quests", h.ListQuests)
	g.POST("/quests", h.CreateQuest)
	g.GET("/quests/:id", h.GetQuest)
	g.POST("/quests/:id/join", h.JoinQuest)
	g.DELETE("/quests/:id/join", h.LeaveQuest)
	g.PATCH("/quests/:id/progress", h.UpdateProgress)
	g.POST("/quests/:id/image", h.UploadQuestImage, uploadLimit)
}

func (h *QuestHandler) loadQuest(c echo.Context) (*models.Quest, error) {
	id, err := parseID(c, "id", "quest")
	if err != nil {
		return nil, err
	}
	quest, err := h.questRepository.GetQuestByID(c.Request().Context(), id)
	if err != nil {
		return nil, dbError(err, "Quest not found")
	}
	return quest, nil
}

func (h *QuestHandler) CreateQuest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}

	var req models.CreateQuestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	req.Title = strings.TrimSpace(req.Title)
	if err := c.Validate(req); err != nil {
		return err
	}
	deadline, err := parseDate(req.Deadline, "deadline")
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	quest := &models.Quest{
		Title:       req.Title,
		Description: strings.TrimSpace(req.Description),
		Deadline:    deadline,
		CreatorID:   currentUserID,
	}
	if err := h.questRepository.CreateQuest(ctx, quest); err != nil {
		return dbError(err, "")
	}

	publish(ctx, h.publisher, events.New(events.QuestCreated, currentUserID, actorName(c)).
		About("quest", quest.ID, quest.Title))

	return respond(c, http.StatusCreated, h.views.quest(quest))
}

// GetQuest returns the quest with its creator and participants.
func (h *QuestHandler) GetQuest(c echo.Context) error {
	quest, err := h.loadQuest(c)
	if err != nil {
		return err
	}
	participants, err := h.questRepository.GetParticipants(c.Request().Context(), quest.ID)
	if err != nil {
		return dbError(err, "")
	}

	view := h.views.quest(quest)
	view.Participants = h.views.authors(participants)
	return respond(c, http.StatusOK, view)
}

func (h *QuestHandler) ListQuests(c echo.Context) error {
	page := parsePage(c)
	quests, total, err := h.questRepository.ListQuests(c.Request().Context(), page, h.perPage)
	if err != nil {
		return dbError(err, "")
	}
	return respondPage(c, h.views.quests(quests), page, h.perPage, total)
}

// JoinQuest is a no-op for the creator and for existing participants.
func (h *QuestHandler) JoinQuest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	quest, err := h.loadQuest(c)
	if err != nil {
		return err
	}
	ctx := c.Request().Context()

	if quest.CreatorID == currentUserID {
		return respond(c, http.StatusOK, echo.Map{"joined": false, "reason": "creator"})
	}

	added, err := h.questRepository.AddParticipant(ctx, quest.ID, currentUserID)
	if err != nil {
		return dbError(err, "")
	}
	if added {
		name := actorName(c)
		publish(ctx, h.publisher, events.New(events.QuestJoined, currentUserID, name).
			About("quest", quest.ID, name+" joined your quest "+quest.Title).
			For(quest.CreatorID))
	}

	return respond(c, http.StatusOK, echo.Map{"joined": true, "already_joined": !added})
}

func (h *QuestHandler) LeaveQuest(c echo.Context) error {
	currentUserID := getUserIDFromContext(c)
	if currentUserID == 0 {
		return echo.NewHTTPError(http.StatusUnauthorized, "User not authenticated")
	}
	quest, err := h.loadQuest(c)
	if err != nil {
		return err
	}

	removed, err := h.questRepository.RemoveParticipant(c.Request().Context(), quest.ID, currentUserID)
	if err != nil {
		return dbError(err, "")
	}
	return respond(c, http.StatusOK, echo.Map{"joined": false, "removed": removed})
}

// UpdateProgress sets the quest's progress percentage. Only the creator may change it.
func (h *QuestHandler) UpdateProgress(c echo.Context) error {
	quest, err := h.loadQuest(c)
	if err != nil {
		return err
	}
	currentUserID := getUserIDFromContext(c)
	if quest.CreatorID != currentUserID {
		return echo.NewHTTPError(http.StatusForbidden, "You are not allowed to edit this quest.")
	}

	var req models.UpdateProgressRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request payload")
	}
	if err := c.Validate(req); err != nil {
		return err
	}
	ctx := c.Request().Context()

	if err := h.questRepository.UpdateProgress(ctx, quest.ID, *req.Progress); err != nil {
		return dbError(err, "")
	}
	quest.Progress = *req.Progress

	publish(ctx, h.publisher, events.New(events.QuestProgressed, currentUserID, actorName(c)).
		About("quest", quest.ID, fmt.Sprintf("%s is %d%% done", quest.Title, quest.Progress)))

	return respond(c, http.StatusOK, h.views.quest(quest))
}

func (h *QuestHandler) UploadQuestImage(c echo.Context) error {
	quest, err := h.loadQuest(c)
	if err != nil {
		return err
	}
	if quest.CreatorID != getUserIDFromContext(c) {
		return echo.NewHTTPError(http.StatusForbidden, "You are not allowed to edit this quest.")
	}

	previous := ""
	if quest.ImageFile != nil {
		previous = *quest.ImageFile
	}
	key, err := saveUpload(c, h.uploader, media.QuestPics, previous, func(key string) error {
		if err := h.questRepository.UpdateImage(c.Request().Context(), quest.ID, key); err != nil {
			return dbError(err, "")
		}
		return nil
	})
	if err != nil {
		return err
	}
	quest.ImageFile = &key
	return respond(c, http.StatusOK, h.views.quest(quest))
}
