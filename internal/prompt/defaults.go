package prompt

import "bistrobooks/internal/domain"

// defaultTemplates are the built-in prompts, shipped in code so the service
// runs with no template file at all. A template file replaces entries by
// (modality, task).
func defaultTemplates() []Template {
	return []Template{
		{
			Name:         "text-transaction",
			Modality:     domain.ModalityText,
			Task:         TaskTransaction,
			Version:      1,
			Placeholders: []string{"input_text", "locale", "currency"},
			Body: `You are the bookkeeping assistant of a restaurant. The operator locale is {locale} and amounts are in {currency} unless the input says otherwise.

Read the following description of a single business transaction. It may be written in Chinese or English:

{input_text}

Extract the transaction and return ONLY a valid JSON object with no markdown formatting, no code fences and no explanation text. Use exactly this shape:

{"type": "revenue" or "expense", "category": "<label>", "amount": <positive number>, "date": "YYYY-MM-DD or omit if not stated", "note": "<short free text>"}

Category labels for revenue: cash, credit_card, ubereats, foodpanda, group_meal, other.
Category labels for expense: ingredients, rent, payroll, utilities, other.
Pick the closest label; keep the operator's own wording in note. Never invent an amount.`,
		},
		{
			Name:         "image-transaction",
			Modality:     domain.ModalityImage,
			Task:         TaskTransaction,
			Version:      1,
			Placeholders: []string{"caption", "locale", "currency"},
			Body: `You are the bookkeeping assistant of a restaurant. The operator locale is {locale} and amounts are in {currency} unless the receipt says otherwise.

The attached photo shows a receipt or invoice. The operator added this caption (may be empty):

{caption}

Read the receipt and return ONLY a valid JSON object with no markdown formatting, no code fences and no explanation text. Use exactly this shape:

{"type": "revenue" or "expense", "category": "<label>", "amount": <positive number, the receipt total>, "date": "YYYY-MM-DD or omit if unreadable", "note": "<merchant or line summary>"}

Category labels for revenue: cash, credit_card, ubereats, foodpanda, group_meal, other.
Category labels for expense: ingredients, rent, payroll, utilities, other.
A supplier receipt is an expense; a settlement statement from a delivery platform is revenue. Never invent an amount.`,
		},
	}
}
