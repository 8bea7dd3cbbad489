package session

import (
	"fmt"
	"sort"
	"time"
)

// QuestStatus is the lifecycle state of a quest.
type QuestStatus string

const (
	QuestStatusActive    QuestStatus = "active"
	QuestStatusCompleted QuestStatus = "completed"
)

// Objective is one step of a quest. Objectives complete independently
// of each other and of the quest itself.
type Objective struct {
	Text      string `json:"text"`
	Completed bool   `json:"completed"`
}

// Quest is a tracked goal in a session. A quest completes only when
// explicitly marked; all objectives being done does not close it.
type Quest struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Objectives  []Objective `json:"objectives"`
	Rewards     []string    `json:"rewards,omitempty"`
	Status      QuestStatus `json:"status"`
}

// AddQuest creates an active quest and returns it. Title, description,
// and at least one objective are required.
func (s *Session) AddQuest(title, description string, objectives, rewards []string) (*Quest, error) {
	if title == "" || description == "" || len(objectives) == 0 {
		return nil, fmt.Errorf("quest requires title, description, and objectives")
	}

	if s.Quests == nil {
		s.Quests = make(map[string]*Quest)
	}
	q := &Quest{
		ID:          fmt.Sprintf("quest_%d", len(s.Quests)+1),
		Title:       title,
		Description: description,
		Objectives:  make([]Objective, 0, len(objectives)),
		Rewards:     rewards,
		Status:      QuestStatusActive,
	}
	for _, text := range objectives {
		q.Objectives = append(q.Objectives, Objective{Text: text})
	}

	s.Quests[q.ID] = q
	s.UpdatedAt = time.Now().UTC()
	return q, nil
}

// CompleteObjective marks one objective done. The quest stays open.
func (s *Session) CompleteObjective(questID string, index int) error {
	q, ok := s.Quests[questID]
	if !ok {
		return fmt.Errorf("no quest with id %q", questID)
	}
	if index < 0 || index >= len(q.Objectives) {
		return fmt.Errorf("quest %s has no objective %d", questID, index)
	}
	q.Objectives[index].Completed = true
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// CompleteQuest explicitly closes a quest.
func (s *Session) CompleteQuest(questID string) error {
	q, ok := s.Quests[questID]
	if !ok {
		return fmt.Errorf("no quest with id %q", questID)
	}
	q.Status = QuestStatusCompleted
	s.UpdatedAt = time.Now().UTC()
	return nil
}

// QuestsByStatus returns quests in the given state, ordered by ID for
// stable display.
func (s *Session) QuestsByStatus(status QuestStatus) []*Quest {
	out := make([]*Quest, 0, len(s.Quests))
	for _, q := range s.Quests {
		if q.Status == status {
			out = append(out, q)
		}
	}
	sort.Slice(out, func(a, b int) bool { return out[a].ID < out[b].ID })
	return out
}
