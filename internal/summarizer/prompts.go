package summarizer

const topicPrompt = `You are an educational content summarizer. Create a concise summary of the following academic content.

TOPIC: %s
SUBJECT: %s
UNIT: %s

CONTENT:
%s

INSTRUCTIONS:
1. Create a concept-focused summary (200-300 tokens)
2. Focus on key concepts, definitions and important relationships
3. Use clear, educational language
4. Do NOT include examples unless they are essential
5. Do NOT add information not present in the content

SUMMARY:`

const unitPrompt = `You are an educational content summarizer. Create a structured summary of a teaching unit from its topic summaries.

UNIT: %s
SUBJECT: %s

TOPIC SUMMARIES:
%s

INSTRUCTIONS:
1. Create a comprehensive unit summary (300-500 tokens)
2. Structure content in logical teaching order
3. Show how topics connect and build upon each other
4. Do NOT add information not present in the topic summaries
5. Make it suitable for a student reviewing the unit

UNIT SUMMARY:`

// mergePrompt 用于 reduce 阶段：把若干部分摘要合并成一份。
const mergePrompt = `You are an educational content summarizer. The material for %s was too long to summarize at once, so it was split into parts and each part was summarized separately.

PART SUMMARIES:
%s

INSTRUCTIONS:
1. Merge the part summaries into one coherent summary
2. Remove repetition between parts and keep the logical order
3. Do NOT add information not present in the part summaries

MERGED SUMMARY:`
