package extraction

// documentScanPrompt is the shared prompt used by all providers for digitizing
// receipts and invoices.
const documentScanPrompt = `You are analyzing a receipt or invoice document. Carefully read all text in the image and extract the following information:

1. **Merchant**: The store, business, or vendor name, usually the largest text at the top of the document. Examples: "Walmart", "CVS Pharmacy", "Cafe Sol".

2. **Date**: The transaction, purchase, or invoice date, converted to ISO 8601 format (YYYY-MM-DD). Common source formats: MM/DD/YYYY, DD/MM/YYYY, or written dates.

3. **Total**: The final total, grand total, or amount due, usually at the bottom and labeled "TOTAL", "Amount Due", "Balance", or similar. Extract only the numeric value.

4. **Currency**: The ISO currency code, inferred from symbols or text (e.g. "USD", "EUR", "INR").

5. **Line items**: Each purchased item with its description and amount.

6. **Category**: One of: Groceries, Medical, Restaurant, Travel, Utilities, Other.

7. **Taxes and discount**: Any itemized tax total and any discount applied.

Return ONLY valid JSON in this exact format:
{
  "merchant": "",
  "date": "YYYY-MM-DD",
  "total": 0.00,
  "currency": "",
  "category": "",
  "line_items": [
    { "description": "", "amount": 0.00 }
  ],
  "tax": 0.00,
  "discount": 0.00
}

Important:
- The date must be in YYYY-MM-DD format
- Amounts must be numbers (not strings)
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
