package httpapi

import (
	"time"

	"github.com/rx3lixir/ewm-service/internal/admission"
	"github.com/rx3lixir/ewm-service/internal/compilation"
	"github.com/rx3lixir/ewm-service/internal/db"
	"github.com/rx3lixir/ewm-service/internal/lifecycle"
)

type locationDTO struct {
	Lat float64 `json:"lat" validate:"gte=-90,lte=90"`
	Lon float64 `json:"lon" validate:"gte=-180,lte=180"`
}

func (l locationDTO) toDB() db.Location {
	return db.Location{Lat: l.Lat, Lon: l.Lon}
}

type newEventRequest struct {
	Annotation        string       `json:"annotation"`
	Category          int64        `json:"category" validate:"required"`
	Description       string       `json:"description"`
	EventDate         string       `json:"eventDate" validate:"required"`
	Location          *locationDTO `json:"location" validate:"required"`
	Paid              bool         `json:"paid"`
	ParticipantLimit  int          `json:"participantLimit"`
	RequestModeration *bool        `json:"requestModeration"`
	Title             string       `json:"title"`
}

func (req newEventRequest) toInput() (lifecycle.NewEvent, error) {
	date, err := parseDate("eventDate", req.EventDate)
	if err != nil {
		return lifecycle.NewEvent{}, err
	}
	return lifecycle.NewEvent{
		CategoryID:        req.Category,
		Title:             req.Title,
		Annotation:        req.Annotation,
		Description:       req.Description,
		Location:          req.Location.toDB(),
		Paid:              req.Paid,
		EventDate:         date,
		ParticipantLimit:  req.ParticipantLimit,
		RequestModeration: req.RequestModeration,
	}, nil
}

type updateEventRequest struct {
	Annotation        *string      `json:"annotation"`
	Category          *int64       `json:"category"`
	Description       *string      `json:"description"`
	EventDate         *string      `json:"eventDate"`
	Location          *locationDTO `json:"location"`
	Paid              *bool        `json:"paid"`
	ParticipantLimit  *int         `json:"participantLimit"`
	RequestModeration *bool        `json:"requestModeration"`
	StateAction       *string      `json:"stateAction"`
	Title             *string      `json:"title"`
}

func (req updateEventRequest) toPatch() (lifecycle.EventPatch, error) {
	patch := lifecycle.EventPatch{
		CategoryID:        req.Category,
		Title:             req.Title,
		Annotation:        req.Annotation,
		Description:       req.Description,
		Paid:              req.Paid,
		ParticipantLimit:  req.ParticipantLimit,
		RequestModeration: req.RequestModeration,
	}
	if req.EventDate != nil {
		date, err := parseDate("eventDate", *req.EventDate)
		if err != nil {
			return patch, err
		}
		patch.EventDate = &date
	}
	if req.Location != nil {
		loc := req.Location.toDB()
		patch.Location = &loc
	}
	if req.StateAction != nil {
		action := lifecycle.StateAction(*req.StateAction)
		patch.StateAction = &action
	}
	return patch, nil
}

func parseDate(field, raw string) (time.Time, error) {
	t, err := time.ParseInLocation(DateLayout, raw, time.Local)
	if err != nil {
		return time.Time{}, badRequest("Field: %s. Error: must match %q, got %q", field, DateLayout, raw)
	}
	return t, nil
}

func formatDate(t time.Time) string {
	return t.In(time.Local).Format(DateLayout)
}

type eventDTO struct {
	ID                int64       `json:"id"`
	Annotation        string      `json:"annotation"`
	Category          int64       `json:"category"`
	ConfirmedRequests int         `json:"confirmedRequests"`
	CreatedOn         string      `json:"createdOn"`
	Description       string      `json:"description"`
	EventDate         string      `json:"eventDate"`
	Initiator         int64       `json:"initiator"`
	Location          locationDTO `json:"location"`
	Paid              bool        `json:"paid"`
	ParticipantLimit  int         `json:"participantLimit"`
	PublishedOn       *string     `json:"publishedOn,omitempty"`
	RequestModeration bool        `json:"requestModeration"`
	Rating            float64     `json:"rating"`
	State             string      `json:"state"`
	Title             string      `json:"title"`
}

func toEventDTO(e *db.Event) eventDTO {
	dto := eventDTO{
		ID:                e.ID,
		Annotation:        e.Annotation,
		Category:          e.CategoryID,
		ConfirmedRequests: e.ConfirmedRequests,
		CreatedOn:         formatDate(e.CreatedOn),
		Description:       e.Description,
		EventDate:         formatDate(e.EventDate),
		Initiator:         e.InitiatorID,
		Location:          locationDTO{Lat: e.Location.Lat, Lon: e.Location.Lon},
		Paid:              e.Paid,
		ParticipantLimit:  e.ParticipantLimit,
		RequestModeration: e.RequestModeration,
		Rating:            e.Rating,
		State:             string(e.State),
		Title:             e.Title,
	}
	if e.PublishedOn != nil {
		published := formatDate(*e.PublishedOn)
		dto.PublishedOn = &published
	}
	return dto
}

func toEventDTOs(events []*db.Event) []eventDTO {
	out := make([]eventDTO, 0, len(events))
	for _, e := range events {
		out = append(out, toEventDTO(e))
	}
	return out
}

type participationDTO struct {
	ID        int64  `json:"id"`
	Created   string `json:"created"`
	Event     int64  `json:"event"`
	Requester int64  `json:"requester"`
	Status    string `json:"status"`
}

func toParticipationDTOs(ps []*db.Participation) []participationDTO {
	out := make([]participationDTO, 0, len(ps))
	for _, p := range ps {
		out = append(out, toParticipationDTO(p))
	}
	return out
}

func toParticipationDTO(p *db.Participation) participationDTO {
	return participationDTO{
		ID:        p.ID,
		Created:   formatDate(p.Created),
		Event:     p.EventID,
		Requester: p.RequesterID,
		Status:    string(p.Status),
	}
}

type statusUpdateRequest struct {
	RequestIDs []int64 `json:"requestIds"`
	Status     string  `json:"status" validate:"required"`
}

func (req statusUpdateRequest) toUpdate() admission.BulkStatusUpdate {
	return admission.BulkStatusUpdate{IDs: req.RequestIDs, Status: db.ParticipationStatus(req.Status)}
}

type statusUpdateResult struct {
	ConfirmedRequests []participationDTO `json:"confirmedRequests"`
	RejectedRequests  []participationDTO `json:"rejectedRequests"`
}

type commentRequest struct {
	Text *string `json:"text"`
	Rate *int    `json:"rate"`
}

type commentDTO struct {
	ID        int64  `json:"id"`
	Event     int64  `json:"event"`
	Commenter int64  `json:"commenter"`
	Text      string `json:"text"`
	Rate      *int   `json:"rate,omitempty"`
	Status    string `json:"status"`
	Created   string `json:"created"`
}

func toCommentDTO(c *db.Comment) commentDTO {
	return commentDTO{
		ID:        c.ID,
		Event:     c.EventID,
		Commenter: c.CommenterID,
		Text:      c.Text,
		Rate:      c.Rate,
		Status:    string(c.Status),
		Created:   formatDate(c.Created),
	}
}

func toCommentDTOs(cs []*db.Comment) []commentDTO {
	out := make([]commentDTO, 0, len(cs))
	for _, c := range cs {
		out = append(out, toCommentDTO(c))
	}
	return out
}

type userRequest struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

type userDTO struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type categoryRequest struct {
	Name string `json:"name"`
}

type categoryDTO struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type newCompilationRequest struct {
	Title  string  `json:"title"`
	Pinned bool    `json:"pinned"`
	Events []int64 `json:"events"`
}

// updateCompilationRequest: events == nil оставляет состав подборки как есть
type updateCompilationRequest struct {
	Title  *string  `json:"title"`
	Pinned *bool    `json:"pinned"`
	Events *[]int64 `json:"events"`
}

type compilationDTO struct {
	ID     int64      `json:"id"`
	Title  string     `json:"title"`
	Pinned bool       `json:"pinned"`
	Events []eventDTO `json:"events"`
}

func toCompilationDTO(v *compilation.View) compilationDTO {
	return compilationDTO{ID: v.ID, Title: v.Title, Pinned: v.Pinned, Events: toEventDTOs(v.Events)}
}
