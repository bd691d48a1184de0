// Package prompt merges retrieved passages and conversation history into a
// bounded prompt for the generator.
package prompt

import (
	"strings"

	"novelrag/types"
)

// SystemInstructions pins the model to the provided passages and demands a
// structured JSON answer. The novels and the audience are Chinese, so the
// instructions are too.
const SystemInstructions = `你是一个精通《西游记》《红楼梦》《三国演义》《水浒传》四大名著的问答助手。
请严格根据下面提供的参考段落回答用户的问题。
在 thinking 字段中说明你是如何根据参考段落一步步找到答案的；在 final_answer 字段中只给出最直接、最简洁的答案，不要添加多余的解释。
只有在参考段落和对话历史都无法回答问题时，才把 final_answer 设为“根据提供的资料，我无法回答这个问题。”
你的输出必须是、也只能是一个形如 {"thinking": "...", "final_answer": "..."} 的 JSON 对象，不要输出 JSON 之外的任何文本。`

// NoPassagesMarker is written into the prompt when retrieval came back
// empty. The model may still answer from the conversation history.
const NoPassagesMarker = "（未检索到相关段落）"

// Assembler builds prompts that never exceed its budget, measured by the
// configured Sizer. History gets at most historyBudget of it, newest turns
// first; passages fill the rest in score order.
type Assembler struct {
	sizer         Sizer
	budget        int
	historyBudget int
}

func NewAssembler(sizer Sizer, budget, historyBudget int) (*Assembler, error) {
	if budget <= 0 {
		return nil, types.ConfigError{Field: "context.budget", Reason: "must be positive"}
	}
	if historyBudget < 0 || historyBudget > budget {
		return nil, types.ConfigError{Field: "context.history_budget", Reason: "must fit within context.budget"}
	}
	return &Assembler{
		sizer:         sizer,
		budget:        budget,
		historyBudget: historyBudget,
	}, nil
}

// Input is everything one request contributes to the prompt. Passages must
// already be in descending score order, as the retriever returns them.
type Input struct {
	Query    string
	History  []types.ConversationTurn
	Passages []types.RetrievalResult
}

// Context is the assembled prompt. Used lists the passages that made it in,
// for source citation; a truncated passage counts as used.
type Context struct {
	System string
	Prompt string
	Used   []types.RetrievalResult
	Size   int
}

// Assemble is deterministic: identical input produces an identical prompt.
func (a *Assembler) Assemble(in Input) Context {
	history := a.selectHistory(in.History)

	// The scaffolding (system, history, query) must fit before any passage
	// is considered; drop the oldest selected turns if it does not.
	for len(history) > 0 && a.measure(render(nil, history, in.Query)) > a.budget {
		history = history[1:]
	}

	var selected []types.RetrievalResult
	for _, p := range in.Passages {
		candidate := append(append([]types.RetrievalResult{}, selected...), p)
		if a.measure(render(candidate, history, in.Query)) <= a.budget {
			selected = candidate
			continue
		}
		// Does not fit whole: keep the highest-scoring partial evidence by
		// truncating from the end, then stop.
		if truncated, ok := a.truncateToFit(selected, p, history, in.Query); ok {
			selected = append(selected, truncated)
		}
		break
	}

	out := render(selected, history, in.Query)
	return Context{
		System: SystemInstructions,
		Prompt: out,
		Used:   selected,
		Size:   a.measure(out),
	}
}

// selectHistory walks the history newest-first and keeps turns while they
// fit the history budget, returning them oldest-first again.
func (a *Assembler) selectHistory(history []types.ConversationTurn) []types.ConversationTurn {
	var kept []types.ConversationTurn
	used := 0
	for i := len(history) - 1; i >= 0; i-- {
		sz := a.sizer.Size(renderTurn(history[i]))
		if used+sz > a.historyBudget {
			break
		}
		used += sz
		kept = append([]types.ConversationTurn{history[i]}, kept...)
	}
	return kept
}

// truncateToFit binary-searches the longest prefix of p.Content whose full
// rendering stays inside the budget.
func (a *Assembler) truncateToFit(selected []types.RetrievalResult, p types.RetrievalResult, history []types.ConversationTurn, query string) (types.RetrievalResult, bool) {
	runes := []rune(p.Content)
	lo, hi := 0, len(runes)
	for lo < hi {
		mid := (lo + hi + 1) / 2
		p.Content = string(runes[:mid])
		candidate := append(append([]types.RetrievalResult{}, selected...), p)
		if a.measure(render(candidate, history, query)) <= a.budget {
			lo = mid
		} else {
			hi = mid - 1
		}
	}
	if lo == 0 {
		return types.RetrievalResult{}, false
	}
	p.Content = string(runes[:lo])
	return p, true
}

func (a *Assembler) measure(prompt string) int {
	return a.sizer.Size(SystemInstructions) + a.sizer.Size(prompt)
}

func render(passages []types.RetrievalResult, history []types.ConversationTurn, query string) string {
	var sb strings.Builder

	sb.WriteString("参考段落：\n")
	if len(passages) == 0 {
		sb.WriteString(NoPassagesMarker)
		sb.WriteString("\n")
	} else {
		for _, p := range passages {
			sb.WriteString("【")
			sb.WriteString(p.BookID)
			sb.WriteString("】\n")
			sb.WriteString(p.Content)
			sb.WriteString("\n\n")
		}
	}

	if len(history) > 0 {
		sb.WriteString("\n对话历史：\n")
		for _, t := range history {
			sb.WriteString(renderTurn(t))
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\n问题：")
	sb.WriteString(query)
	sb.WriteString("\n回答：")
	return sb.String()
}

func renderTurn(t types.ConversationTurn) string {
	label := "用户"
	if t.Role == types.RoleAssistant {
		label = "助手"
	}
	return label + "：" + t.Content
}
