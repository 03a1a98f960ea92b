package booknotify

import (
	"fmt"

	"github.com/coregx/booknotify/retry"
)

const (
	retryTopicSuffix      = "-retry-"
	deadLetterTopicSuffix = "-dlt"
)

// RetryTopic returns the name of the retry stage with the given 0-based index.
func RetryTopic(base string, index int) string {
	return fmt.Sprintf("%s%s%d", base, retryTopicSuffix, index)
}

// DeadLetterTopic returns the name of the dead-letter topic for base.
func DeadLetterTopic(base string) string {
	return base + deadLetterTopicSuffix
}

// StageTopics returns the primary topic followed by every retry stage the
// policy needs.
func StageTopics(base string, policy retry.Policy) []string {
	topics := make([]string, 0, policy.StageCount()+1)
	topics = append(topics, base)
	for i := 0; i < policy.StageCount(); i++ {
		topics = append(topics, RetryTopic(base, i))
	}
	return topics
}
