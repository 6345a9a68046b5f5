package agent

import (
	"fmt"
	"strings"
)

// BuildClassifyPrompt asks the model to tag an inbound post with a marker.
func BuildClassifyPrompt(post string) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("Tweet: %s\n", post))
	sb.WriteString("Task: Reply " + MarkerRespond + " or " + MarkerIgnore + " based on:\n")
	sb.WriteString(MarkerRespond + " if:\n")
	sb.WriteString("- Direct mention/address\n")
	sb.WriteString("- Contains question\n")
	sb.WriteString("- Contains command/request\n")
	sb.WriteString(MarkerIgnore + " if:\n")
	sb.WriteString("- Unrelated content\n")
	sb.WriteString("- Spam/nonsensical\n")
	sb.WriteString("Answer:")

	return sb.String()
}

// BuildReplyPrompt constructs the prompt for a reply to a social post
func BuildReplyPrompt(post string) string {
	var sb strings.Builder

	sb.WriteString("Task: Generate a post/reply in your voice, style and perspective while using this as context:\n")
	sb.WriteString(fmt.Sprintf("Current Post: '%s'\n", post))
	sb.WriteString("Generate a brief, single response that:\n")
	sb.WriteString("- Uses all lowercase\n")
	sb.WriteString("- Avoids punctuation\n")
	sb.WriteString("- Is direct and possibly sarcastic\n")
	sb.WriteString(fmt.Sprintf("- Stays under %d characters\n", MaxPostChars))
	sb.WriteString("Write only the response text, nothing else:")

	return sb.String()
}

// BuildPostPrompt constructs the prompt for a standalone post
func BuildPostPrompt() string {
	var sb strings.Builder

	sb.WriteString("# Task: Write a Social Media Post\n")
	sb.WriteString("Write a 1-3 sentence post that would be engaging to readers. ")
	sb.WriteString(fmt.Sprintf("Keep it casual and friendly in tone. Stay under %d characters.\n\n", MaxPostChars))
	sb.WriteString("Requirements:\n")
	sb.WriteString("- Write only the post content, no additional commentary\n")
	sb.WriteString("- No emojis\n")
	sb.WriteString("- No hashtags\n")
	sb.WriteString("- No questions\n")
	sb.WriteString("- No introductory phrases or meta-commentary\n")
	sb.WriteString("- Brief, concise statements only\n")
	sb.WriteString("- Focus on personal experiences, observations, or thoughts")

	return sb.String()
}

// BuildChatPrompt constructs the prompt for a chat relay reply. The tone
// rules differ from social posts: punctuation, capitalization and emojis
// are all allowed.
func BuildChatPrompt(message string) string {
	var sb strings.Builder

	sb.WriteString("Task: Generate a conversational reply to this Telegram message while using this as context:\n")
	sb.WriteString(fmt.Sprintf("Message: '%s'\n", message))
	sb.WriteString("Generate a natural response that:\n")
	sb.WriteString("- Is friendly and conversational\n")
	sb.WriteString("- Can use normal punctuation and capitalization\n")
	sb.WriteString("- May include emojis when appropriate\n")
	sb.WriteString("- Maintains a helpful and engaging tone\n")
	sb.WriteString("- Keeps responses concise but not artificially limited\n")
	sb.WriteString("Write only the response text, nothing else:")

	return sb.String()
}
