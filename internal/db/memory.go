package db

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rx3lixir/ewm-service/internal/apperr"
)

// MemoryStore - реализация Store в памяти для тестов и локального запуска.
// Один мьютекс сериализует все операции; WithTx держит его до конца fn
// и откатывает изменения, если fn вернула ошибку.
type MemoryStore struct {
	*memQueries
	mu sync.Mutex
}

// NewMemoryStore создает пустое хранилище в памяти
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	s.memQueries = &memQueries{data: newMemData(), lock: s.lockAll}
	return s
}

func (s *MemoryStore) lockAll() func() {
	s.mu.Lock()
	return s.mu.Unlock
}

func noLock() func() { return func() {} }

// WithTx выполняет fn атомарно относительно всех остальных операций хранилища
func (s *MemoryStore) WithTx(ctx context.Context, fn func(q Queries) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.data.clone()
	if err := fn(&memQueries{data: s.data, lock: noLock}); err != nil {
		*s.data = *snapshot
		return err
	}
	return nil
}

type memData struct {
	seq            int64
	users          map[int64]User
	categories     map[int64]Category
	events         map[int64]Event
	participations map[int64]Participation
	comments       map[int64]Comment
	compilations   map[int64]Compilation
}

func newMemData() *memData {
	return &memData{
		users:          map[int64]User{},
		categories:     map[int64]Category{},
		events:         map[int64]Event{},
		participations: map[int64]Participation{},
		comments:       map[int64]Comment{},
		compilations:   map[int64]Compilation{},
	}
}

func (d *memData) clone() *memData {
	c := &memData{
		seq:            d.seq,
		users:          make(map[int64]User, len(d.users)),
		categories:     make(map[int64]Category, len(d.categories)),
		events:         make(map[int64]Event, len(d.events)),
		participations: make(map[int64]Participation, len(d.participations)),
		comments:       make(map[int64]Comment, len(d.comments)),
		compilations:   make(map[int64]Compilation, len(d.compilations)),
	}
	for k, v := range d.users {
		c.users[k] = v
	}
	for k, v := range d.categories {
		c.categories[k] = v
	}
	for k, v := range d.events {
		c.events[k] = copyEvent(v)
	}
	for k, v := range d.participations {
		c.participations[k] = v
	}
	for k, v := range d.comments {
		c.comments[k] = copyComment(v)
	}
	for k, v := range d.compilations {
		c.compilations[k] = copyCompilation(v)
	}
	return c
}

func (d *memData) nextID() int64 {
	d.seq++
	return d.seq
}

func copyEvent(e Event) Event {
	if e.PublishedOn != nil {
		p := *e.PublishedOn
		e.PublishedOn = &p
	}
	return e
}

func copyComment(c Comment) Comment {
	if c.Rate != nil {
		r := *c.Rate
		c.Rate = &r
	}
	return c
}

func copyCompilation(c Compilation) Compilation {
	c.EventIDs = append([]int64{}, c.EventIDs...)
	return c
}

// memQueries реализует Queries поверх memData. lock захватывает мьютекс
// хранилища вне транзакции и ничего не делает внутри нее.
type memQueries struct {
	data *memData
	lock func() func()
}

// Пользователи

func (q *memQueries) CreateUser(_ context.Context, user *User) error {
	defer q.lock()()
	for _, u := range q.data.users {
		if strings.EqualFold(u.Email, user.Email) {
			return apperr.Conflict(apperr.CodeUserDuplicateEmail, "email %q is already registered", user.Email)
		}
	}
	user.ID = q.data.nextID()
	q.data.users[user.ID] = *user
	return nil
}

func (q *memQueries) GetUserByID(_ context.Context, id int64) (*User, error) {
	defer q.lock()()
	u, ok := q.data.users[id]
	if !ok {
		return nil, apperr.NotFound("User with id=%d was not found", id)
	}
	return &u, nil
}

func (q *memQueries) ListUsers(_ context.Context, ids []int64, page Page) ([]*User, error) {
	defer q.lock()()
	wanted := make(map[int64]bool, len(ids))
	for _, id := range ids {
		wanted[id] = true
	}
	users := []*User{}
	for _, u := range q.data.users {
		if len(ids) > 0 && !wanted[u.ID] {
			continue
		}
		u := u
		users = append(users, &u)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].ID < users[j].ID })
	return paginate(users, page), nil
}

func (q *memQueries) DeleteUser(_ context.Context, id int64) error {
	defer q.lock()()
	if _, ok := q.data.users[id]; !ok {
		return apperr.NotFound("User with id=%d was not found", id)
	}
	delete(q.data.users, id)
	return nil
}

func (q *memQueries) UserHasDependents(_ context.Context, id int64) (bool, error) {
	defer q.lock()()
	for _, e := range q.data.events {
		if e.InitiatorID == id {
			return true, nil
		}
	}
	for _, p := range q.data.participations {
		if p.RequesterID == id {
			return true, nil
		}
	}
	for _, c := range q.data.comments {
		if c.CommenterID == id {
			return true, nil
		}
	}
	return false, nil
}

// Категории

func (q *memQueries) categoryNameTaken(name string, exceptID int64) bool {
	for _, c := range q.data.categories {
		if c.ID != exceptID && c.Name == name {
			return true
		}
	}
	return false
}

func (q *memQueries) CreateCategory(_ context.Context, category *Category) error {
	defer q.lock()()
	if q.categoryNameTaken(category.Name, 0) {
		return apperr.Conflict(apperr.CodeCategoryDuplicateName, "category name %q is already used", category.Name)
	}
	category.ID = q.data.nextID()
	q.data.categories[category.ID] = *category
	return nil
}

func (q *memQueries) GetCategoryByID(_ context.Context, id int64) (*Category, error) {
	defer q.lock()()
	c, ok := q.data.categories[id]
	if !ok {
		return nil, apperr.NotFound("Category with id=%d was not found", id)
	}
	return &c, nil
}

func (q *memQueries) ListCategories(_ context.Context, page Page) ([]*Category, error) {
	defer q.lock()()
	categories := []*Category{}
	for _, c := range q.data.categories {
		c := c
		categories = append(categories, &c)
	}
	sort.Slice(categories, func(i, j int) bool { return categories[i].ID < categories[j].ID })
	return paginate(categories, page), nil
}

func (q *memQueries) UpdateCategory(_ context.Context, category *Category) error {
	defer q.lock()()
	if _, ok := q.data.categories[category.ID]; !ok {
		return apperr.NotFound("Category with id=%d was not found", category.ID)
	}
	if q.categoryNameTaken(category.Name, category.ID) {
		return apperr.Conflict(apperr.CodeCategoryDuplicateName, "category name %q is already used", category.Name)
	}
	q.data.categories[category.ID] = *category
	return nil
}

func (q *memQueries) DeleteCategory(_ context.Context, id int64) error {
	defer q.lock()()
	if _, ok := q.data.categories[id]; !ok {
		return apperr.NotFound("Category with id=%d was not found", id)
	}
	delete(q.data.categories, id)
	return nil
}

func (q *memQueries) CategoryInUse(_ context.Context, id int64) (bool, error) {
	defer q.lock()()
	for _, e := range q.data.events {
		if e.CategoryID == id {
			return true, nil
		}
	}
	return false, nil
}

// События

func (q *memQueries) CreateEvent(_ context.Context, event *Event) error {
	defer q.lock()()
	event.ID = q.data.nextID()
	event.ConfirmedRequests = 0
	event.Rating = 0
	q.data.events[event.ID] = copyEvent(*event)
	return nil
}

func (q *memQueries) GetEventByID(_ context.Context, id int64) (*Event, error) {
	defer q.lock()()
	return q.getEvent(id)
}

// LockEventByID в памяти равен GetEventByID: строку защищает мьютекс транзакции
func (q *memQueries) LockEventByID(_ context.Context, id int64) (*Event, error) {
	defer q.lock()()
	return q.getEvent(id)
}

func (q *memQueries) getEvent(id int64) (*Event, error) {
	e, ok := q.data.events[id]
	if !ok {
		return nil, apperr.NotFound("Event with id=%d was not found", id)
	}
	e = copyEvent(e)
	return &e, nil
}

func (q *memQueries) UpdateEventDetails(_ context.Context, event *Event) error {
	defer q.lock()()
	stored, ok := q.data.events[event.ID]
	if !ok {
		return apperr.NotFound("Event with id=%d was not found", event.ID)
	}
	updated := copyEvent(*event)
	updated.InitiatorID = stored.InitiatorID
	updated.CreatedOn = stored.CreatedOn
	updated.ConfirmedRequests = stored.ConfirmedRequests
	updated.Rating = stored.Rating
	q.data.events[event.ID] = updated
	return nil
}

func (q *memQueries) SetConfirmedRequests(_ context.Context, eventID int64, confirmed int) error {
	defer q.lock()()
	e, ok := q.data.events[eventID]
	if !ok {
		return apperr.NotFound("Event with id=%d was not found", eventID)
	}
	e.ConfirmedRequests = confirmed
	q.data.events[eventID] = e
	return nil
}

func (q *memQueries) SetRating(_ context.Context, eventID int64, rating float64) error {
	defer q.lock()()
	e, ok := q.data.events[eventID]
	if !ok {
		return apperr.NotFound("Event with id=%d was not found", eventID)
	}
	e.Rating = rating
	q.data.events[eventID] = e
	return nil
}

func (q *memQueries) ListEvents(_ context.Context, filter *EventFilter) ([]*Event, error) {
	if filter == nil {
		filter = NewEventFilter()
	}
	if err := ValidateEventFilter(filter); err != nil {
		return nil, err
	}

	defer q.lock()()
	events := q.matchEvents(filter)

	switch filter.Sort {
	case SortByEventDate:
		sort.Slice(events, func(i, j int) bool {
			if events[i].EventDate.Equal(events[j].EventDate) {
				return events[i].ID < events[j].ID
			}
			return events[i].EventDate.Before(events[j].EventDate)
		})
	case SortByRating:
		sort.Slice(events, func(i, j int) bool {
			if events[i].Rating == events[j].Rating {
				return events[i].ID < events[j].ID
			}
			return events[i].Rating > events[j].Rating
		})
	default:
		sort.Slice(events, func(i, j int) bool { return events[i].ID < events[j].ID })
	}

	return paginate(events, Page{Limit: filter.GetLimit(), Offset: filter.GetOffset()}), nil
}

func (q *memQueries) CountEvents(_ context.Context, filter *EventFilter) (int64, error) {
	if filter == nil {
		filter = NewEventFilter()
	}
	defer q.lock()()
	return int64(len(q.matchEvents(filter))), nil
}

func (q *memQueries) matchEvents(filter *EventFilter) []*Event {
	ids := toSet(filter.IDs)
	initiators := toSet(filter.InitiatorIDs)
	categories := toSet(filter.CategoryIDs)
	states := make(map[EventState]bool, len(filter.States))
	for _, st := range filter.States {
		states[st] = true
	}
	var text string
	if filter.Text != nil {
		text = strings.ToLower(*filter.Text)
	}

	events := []*Event{}
	for _, e := range q.data.events {
		switch {
		case len(ids) > 0 && !ids[e.ID],
			len(initiators) > 0 && !initiators[e.InitiatorID],
			len(categories) > 0 && !categories[e.CategoryID],
			len(states) > 0 && !states[e.State],
			filter.Paid != nil && e.Paid != *filter.Paid,
			filter.DateFrom != nil && e.EventDate.Before(*filter.DateFrom),
			filter.DateTo != nil && e.EventDate.After(*filter.DateTo),
			filter.OnlyAvailable && e.LimitReached():
			continue
		}
		if filter.Text != nil &&
			!strings.Contains(strings.ToLower(e.Annotation), text) &&
			!strings.Contains(strings.ToLower(e.Description), text) {
			continue
		}
		e := copyEvent(e)
		events = append(events, &e)
	}
	return events
}

// Заявки

func (q *memQueries) CreateParticipation(_ context.Context, p *Participation) error {
	defer q.lock()()
	for _, existing := range q.data.participations {
		if existing.EventID == p.EventID && existing.RequesterID == p.RequesterID {
			return apperr.Conflict(apperr.CodeParticipationDuplicate,
				"user %d has already requested participation in event %d", p.RequesterID, p.EventID)
		}
	}
	p.ID = q.data.nextID()
	q.data.participations[p.ID] = *p
	return nil
}

func (q *memQueries) GetParticipationByID(_ context.Context, id int64) (*Participation, error) {
	defer q.lock()()
	p, ok := q.data.participations[id]
	if !ok {
		return nil, apperr.NotFound("Request with id=%d was not found", id)
	}
	return &p, nil
}

func (q *memQueries) ParticipationExists(_ context.Context, eventID, requesterID int64) (bool, error) {
	defer q.lock()()
	for _, p := range q.data.participations {
		if p.EventID == eventID && p.RequesterID == requesterID {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) HasConfirmedParticipation(_ context.Context, eventID, userID int64) (bool, error) {
	defer q.lock()()
	for _, p := range q.data.participations {
		if p.EventID == eventID && p.RequesterID == userID && p.Status == ParticipationConfirmed {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) ListParticipations(_ context.Context, filter *ParticipationFilter) ([]*Participation, error) {
	if filter == nil {
		filter = &ParticipationFilter{}
	}
	defer q.lock()()

	ids := toSet(filter.IDs)
	statuses := make(map[ParticipationStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}

	out := []*Participation{}
	for _, p := range q.data.participations {
		switch {
		case len(ids) > 0 && !ids[p.ID],
			filter.EventID != nil && p.EventID != *filter.EventID,
			filter.RequesterID != nil && p.RequesterID != *filter.RequesterID,
			len(statuses) > 0 && !statuses[p.Status]:
			continue
		}
		p := p
		out = append(out, &p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return out, nil
}

func (q *memQueries) UpdateParticipationStatuses(_ context.Context, ps []*Participation) error {
	defer q.lock()()
	for _, p := range ps {
		stored, ok := q.data.participations[p.ID]
		if !ok {
			return apperr.NotFound("Request with id=%d was not found", p.ID)
		}
		stored.Status = p.Status
		q.data.participations[p.ID] = stored
	}
	return nil
}

func (q *memQueries) CountConfirmed(_ context.Context, eventID int64) (int, error) {
	defer q.lock()()
	count := 0
	for _, p := range q.data.participations {
		if p.EventID == eventID && p.Status == ParticipationConfirmed {
			count++
		}
	}
	return count, nil
}

// Комментарии

func (q *memQueries) CreateComment(_ context.Context, c *Comment) error {
	defer q.lock()()
	for _, existing := range q.data.comments {
		if existing.EventID == c.EventID && existing.CommenterID == c.CommenterID {
			return apperr.Conflict(apperr.CodeCommentDuplicate,
				"user %d has already commented on event %d", c.CommenterID, c.EventID)
		}
	}
	c.ID = q.data.nextID()
	q.data.comments[c.ID] = copyComment(*c)
	return nil
}

func (q *memQueries) GetCommentByID(_ context.Context, id int64) (*Comment, error) {
	defer q.lock()()
	c, ok := q.data.comments[id]
	if !ok {
		return nil, apperr.NotFound("Comment with id=%d was not found", id)
	}
	c = copyComment(c)
	return &c, nil
}

func (q *memQueries) CommentExists(_ context.Context, eventID, commenterID int64) (bool, error) {
	defer q.lock()()
	for _, c := range q.data.comments {
		if c.EventID == eventID && c.CommenterID == commenterID {
			return true, nil
		}
	}
	return false, nil
}

func (q *memQueries) UpdateComment(_ context.Context, c *Comment) error {
	defer q.lock()()
	stored, ok := q.data.comments[c.ID]
	if !ok {
		return apperr.NotFound("Comment with id=%d was not found", c.ID)
	}
	stored.Text = c.Text
	stored.Rate = c.Rate
	stored.Status = c.Status
	q.data.comments[c.ID] = copyComment(stored)
	return nil
}

func (q *memQueries) DeleteComment(_ context.Context, id int64) error {
	defer q.lock()()
	if _, ok := q.data.comments[id]; !ok {
		return apperr.NotFound("Comment with id=%d was not found", id)
	}
	delete(q.data.comments, id)
	return nil
}

func (q *memQueries) ListComments(_ context.Context, filter *CommentFilter) ([]*Comment, error) {
	if filter == nil {
		filter = &CommentFilter{}
	}
	defer q.lock()()

	statuses := make(map[CommentStatus]bool, len(filter.Statuses))
	for _, st := range filter.Statuses {
		statuses[st] = true
	}

	out := []*Comment{}
	for _, c := range q.data.comments {
		switch {
		case filter.EventID != nil && c.EventID != *filter.EventID,
			filter.CommenterID != nil && c.CommenterID != *filter.CommenterID,
			len(statuses) > 0 && !statuses[c.Status],
			filter.Rated != nil && (c.Rate != nil) != *filter.Rated:
			continue
		}
		c := copyComment(c)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Created.Equal(out[j].Created) {
			return out[i].ID < out[j].ID
		}
		return out[i].Created.Before(out[j].Created)
	})
	return paginate(out, Page{Limit: filter.GetLimit(), Offset: filter.GetOffset()}), nil
}

func (q *memQueries) AverageApprovedRate(_ context.Context, eventID int64) (float64, error) {
	defer q.lock()()
	sum, n := 0, 0
	for _, c := range q.data.comments {
		if c.EventID == eventID && c.Counted() {
			sum += *c.Rate
			n++
		}
	}
	if n == 0 {
		return 0, nil
	}
	return float64(sum) / float64(n), nil
}

// Подборки

func (q *memQueries) compilationTitleTaken(title string, exceptID int64) bool {
	for _, c := range q.data.compilations {
		if c.ID != exceptID && c.Title == title {
			return true
		}
	}
	return false
}

func (q *memQueries) CreateCompilation(_ context.Context, c *Compilation) error {
	defer q.lock()()
	if q.compilationTitleTaken(c.Title, 0) {
		return apperr.Conflict(apperr.CodeCompilationDuplicateTitle, "compilation title %q is already used", c.Title)
	}
	c.ID = q.data.nextID()
	c.EventIDs = []int64{}
	q.data.compilations[c.ID] = copyCompilation(*c)
	return nil
}

func (q *memQueries) GetCompilationByID(_ context.Context, id int64) (*Compilation, error) {
	defer q.lock()()
	c, ok := q.data.compilations[id]
	if !ok {
		return nil, apperr.NotFound("Compilation with id=%d was not found", id)
	}
	c = copyCompilation(c)
	return &c, nil
}

func (q *memQueries) ListCompilations(_ context.Context, pinned *bool, page Page) ([]*Compilation, error) {
	defer q.lock()()
	out := []*Compilation{}
	for _, c := range q.data.compilations {
		if pinned != nil && c.Pinned != *pinned {
			continue
		}
		c := copyCompilation(c)
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return paginate(out, page), nil
}

func (q *memQueries) UpdateCompilation(_ context.Context, c *Compilation) error {
	defer q.lock()()
	stored, ok := q.data.compilations[c.ID]
	if !ok {
		return apperr.NotFound("Compilation with id=%d was not found", c.ID)
	}
	if q.compilationTitleTaken(c.Title, c.ID) {
		return apperr.Conflict(apperr.CodeCompilationDuplicateTitle, "compilation title %q is already used", c.Title)
	}
	stored.Title = c.Title
	stored.Pinned = c.Pinned
	q.data.compilations[c.ID] = stored
	return nil
}

func (q *memQueries) SetCompilationEvents(_ context.Context, compilationID int64, eventIDs []int64) error {
	defer q.lock()()
	stored, ok := q.data.compilations[compilationID]
	if !ok {
		return apperr.NotFound("Compilation with id=%d was not found", compilationID)
	}
	for _, id := range eventIDs {
		if _, ok := q.data.events[id]; !ok {
			return apperr.NotFound("Event with id=%d was not found", id)
		}
	}
	stored.EventIDs = append([]int64{}, eventIDs...)
	q.data.compilations[compilationID] = stored
	return nil
}

func (q *memQueries) DeleteCompilation(_ context.Context, id int64) error {
	defer q.lock()()
	if _, ok := q.data.compilations[id]; !ok {
		return apperr.NotFound("Compilation with id=%d was not found", id)
	}
	delete(q.data.compilations, id)
	return nil
}

func toSet(ids []int64) map[int64]bool {
	set := make(map[int64]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

func paginate[T any](items []T, page Page) []T {
	page = page.Normalize()
	if page.Offset >= len(items) {
		return []T{}
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}
