package workqueue

import "sync"

// ConcurrencyStrategy decides whether another task of a kind may start.
type ConcurrencyStrategy interface {
	CanStart(llm bool) bool
	OnStart(llm bool)
	OnComplete(llm bool)
}

// LimitStrategy caps the number of concurrently running LLM and data
// tasks independently. A limit below 1 is treated as 1.
type LimitStrategy struct {
	mu          sync.Mutex
	maxLLM      int
	maxData     int
	llmRunning  int
	dataRunning int
}

func NewLimitStrategy(maxLLM, maxData int) *LimitStrategy {
	if maxLLM < 1 {
		maxLLM = 1
	}
	if maxData < 1 {
		maxData = 1
	}
	return &LimitStrategy{maxLLM: maxLLM, maxData: maxData}
}

// NewSerializedStrategy runs at most one LLM task and one data task at a time.
func NewSerializedStrategy() *LimitStrategy {
	return NewLimitStrategy(1, 1)
}

func (s *LimitStrategy) CanStart(llm bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if llm {
		return s.llmRunning < s.maxLLM
	}
	return s.dataRunning < s.maxData
}

func (s *LimitStrategy) OnStart(llm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if llm {
		s.llmRunning++
	} else {
		s.dataRunning++
	}
}

func (s *LimitStrategy) OnComplete(llm bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if llm {
		if s.llmRunning > 0 {
			s.llmRunning--
		}
		return
	}
	if s.dataRunning > 0 {
		s.dataRunning--
	}
}
