package results

import (
	"sort"

	"github.com/ahrav/strategybench/internal/domain"
)

// ResultFile is the durable projection of every attempt for one
// (strategy, category) pair. Example is kept sorted by question index.
type ResultFile struct {
	Category  string                 `json:"category"`
	Strategy  domain.StrategyID      `json:"strategy"`
	ModelName string                 `json:"model_name"`
	Example   []domain.AnswerAttempt `json:"example"`
}

// NewResultFile returns an empty file for the pair.
func NewResultFile(strategy domain.StrategyID, category, modelName string) *ResultFile {
	return &ResultFile{
		Category:  category,
		Strategy:  strategy,
		ModelName: modelName,
		Example:   []domain.AnswerAttempt{},
	}
}

// Lookup returns the attempt recorded for index.
func (rf *ResultFile) Lookup(index int) (*domain.AnswerAttempt, bool) {
	if rf == nil {
		return nil, false
	}
	i, found := rf.search(index)
	if !found {
		return nil, false
	}
	return &rf.Example[i], true
}

// Counts returns the number of successful and failed attempts.
func (rf *ResultFile) Counts() (succeeded, failed int) {
	if rf == nil {
		return 0, 0
	}
	for i := range rf.Example {
		if rf.Example[i].Status() == domain.StatusSuccess {
			succeeded++
		} else {
			failed++
		}
	}
	return succeeded, failed
}

// upsert inserts a or replaces the attempt with the same index.
func (rf *ResultFile) upsert(a domain.AnswerAttempt) {
	i, found := rf.search(a.Index)
	if found {
		rf.Example[i] = a
		return
	}
	rf.Example = append(rf.Example, domain.AnswerAttempt{})
	copy(rf.Example[i+1:], rf.Example[i:])
	rf.Example[i] = a
}

func (rf *ResultFile) search(index int) (int, bool) {
	i := sort.Search(len(rf.Example), func(i int) bool { return rf.Example[i].Index >= index })
	return i, i < len(rf.Example) && rf.Example[i].Index == index
}

// normalize sorts entries by index and keeps the last entry written for a
// repeated index.
func (rf *ResultFile) normalize() {
	if rf.Example == nil {
		rf.Example = []domain.AnswerAttempt{}
		return
	}
	sort.SliceStable(rf.Example, func(i, j int) bool { return rf.Example[i].Index < rf.Example[j].Index })

	out := rf.Example[:0]
	for _, a := range rf.Example {
		if n := len(out); n > 0 && out[n-1].Index == a.Index {
			out[n-1] = a
			continue
		}
		out = append(out, a)
	}
	rf.Example = out
}
