package llm

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/hiendinhngoc/AI-personal-finance-coach/internal/core"
)

const receiptSchema = `[
  {
    "amount": <number>,
    "currency": "vnd" | "usd" | "eur",
    "category": "Food" | "Transportation" | "Housing" | "Entertainment" | "Other"
  }
]`

const receiptInstructions = `You are an assistant that extracts purchases from receipt images.
Identify each purchased item on the receipt and respond with ONLY a JSON array matching this schema, no prose and no markdown:
` + receiptSchema + `
Use the receipt's currency for every item. If the whole receipt is a single purchase, return a one-element array.`

const categoriesSchema = `{
  "topSavingCategory": <string>,
  "topSpendingCategory": <string>
}`

const repairSystemPrompt = `You are a strict JSON formatter. You receive a schema and a malformed response. Reply with ONLY valid JSON matching the schema. No markdown fences, no explanations.`

func repairUserPrompt(schema, malformed string) string {
	return fmt.Sprintf("Expected JSON schema:\n%s\n\nMalformed response to reformat:\n%s", schema, malformed)
}

// FallbackAdviceMessage is returned whenever advice generation fails for any
// reason; advice degrades rather than erroring.
const FallbackAdviceMessage = "Sorry, I couldn't find any advice for you. Please try again later."

func reportPrompt(current, previous core.Snapshot) string {
	var b strings.Builder
	b.WriteString("You are a personal finance coach. Write a concise markdown report with three sections:\n")
	b.WriteString("1. An assessment of this month's spending against the budget.\n")
	b.WriteString("2. Concrete cost-cutting advice for the highest-spending categories.\n")
	b.WriteString("3. A comparison with the previous month.\n\n")
	b.WriteString("Current month:\n")
	writeSnapshot(&b, current)
	b.WriteString("\nPrevious month:\n")
	writeSnapshot(&b, previous)
	return b.String()
}

func categoriesPrompt(current core.Snapshot) string {
	var b strings.Builder
	b.WriteString("Given this month's spending breakdown, name the category with the lowest total spend (topSavingCategory) and the one with the highest (topSpendingCategory). ")
	b.WriteString("If there are no expenses, use \"None\" for both. Respond with ONLY JSON matching:\n")
	b.WriteString(categoriesSchema)
	b.WriteString("\n\nSpending breakdown:\n")
	writeSnapshot(&b, current)
	return b.String()
}

func chatSystemPrompt(snap core.Snapshot) string {
	var b strings.Builder
	b.WriteString("You are a financial expert that can help me with my financial goals.\n")
	b.WriteString("I will give you my current financial data and you will give me advice on how to save money.\n")
	b.WriteString("You will be given full data on my current financial situation.\n---\n")
	b.WriteString("Here is my current financial data:\n")
	fmt.Fprintf(&b, "Monthly Budget: %s\n", formatUSD(snap.Budget))
	fmt.Fprintf(&b, "Total Expenses This Month: %s\n", formatUSD(snap.TotalExpenses))
	fmt.Fprintf(&b, "Remaining Budget: %s\n\n", formatUSD(snap.Remaining()))
	b.WriteString("Expense Breakdown:\n")
	for _, d := range snap.ExpenseDetails {
		fmt.Fprintf(&b, "%s: %s\n", d.Category, formatUSD(d.Amount))
	}
	b.WriteString("---\n")
	b.WriteString("Respond concisely under 100 words.\n")
	b.WriteString("Always acknowledge the user's current budget and expenses in your responses.\n")
	b.WriteString("If the budget is exceeded, provide specific advice on reducing expenses.\n")
	return b.String()
}

const weatherSchema = `{
  "main": <string>,
  "description": <string>,
  "temp": <number, celsius>,
  "humidity": <number, percent>,
  "windSpeed": <number, m/s>
}`

const weatherPrompt = `Generate a plausible current weather report for a city in Vietnam. Respond with ONLY JSON matching:
` + weatherSchema

func writeSnapshot(b *strings.Builder, snap core.Snapshot) {
	fmt.Fprintf(b, "- Month number: %d\n", snap.Month)
	fmt.Fprintf(b, "- Budget: %s\n", formatUSD(snap.Budget))
	fmt.Fprintf(b, "- Total expenses: %s\n", formatUSD(snap.TotalExpenses))
	if len(snap.ExpenseDetails) == 0 {
		b.WriteString("- No expenses recorded\n")
		return
	}
	for _, d := range snap.ExpenseDetails {
		fmt.Fprintf(b, "- %s: %s\n", d.Category, formatUSD(d.Amount))
	}
}

func formatUSD(d decimal.Decimal) string {
	return "$" + d.StringFixed(2)
}
