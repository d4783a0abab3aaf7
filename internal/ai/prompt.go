package ai

import (
	"fmt"
	"strings"

	"google.golang.org/genai"
)

const systemPrompt = `You are an expert marketplace seller assistant. Your job is to analyze product photos and generate high-quality listing information.

Guidelines:
- Write compelling, keyword-rich titles (50-80 characters)
- Create detailed descriptions with bullet points highlighting key features
- Extract accurate item specifics (brand, model, size, color, material, style)
- Assess condition honestly based on visible wear/flaws
- Suggest realistic pricing based on item condition and market value

Output ONLY valid JSON matching the required schema. Do not include any markdown formatting, code blocks, or explanatory text.`

const analysisPrompt = `Analyze these product images and generate a complete listing draft.

Images: %d photo(s) provided

Requirements:
1. Title: Compelling, keyword-rich, 50-80 characters
2. Description: Detailed, professional, with bullet points. Highlight:
   - Key features and specifications
   - Condition details
   - Any visible flaws or wear
   - What's included
3. Item Specifics: brand, model/part number, size, color, material and style when visible
4. Condition: choose the most accurate of: %s
5. Visible Flaws: list any scratches, dents, wear, missing parts, etc.
6. Pricing: suggest a realistic price range from condition, comparable listings and market value. Include a confidence level (0-1)
7. Keywords: extract 5-10 relevant search keywords
8. Category: suggest a marketplace category id if possible

Be thorough and accurate. If you cannot determine something from the images, use null.`

const schemaInstructions = `Output format (JSON only, no markdown):
{
  "title": "string (50-80 chars)",
  "description": "string (detailed, 200+ chars)",
  "condition": "one of the condition labels above",
  "itemSpecifics": {
    "brand": "string or null",
    "model": "string or null",
    "size": "string or null",
    "color": "string or null",
    "material": "string or null",
    "style": "string or null"
  },
  "pricing": {
    "min": number,
    "max": number,
    "suggested": number,
    "confidence": number (0-1),
    "currency": "USD",
    "reasoning": "string (optional)"
  },
  "keywords": ["string", ...],
  "categoryId": "string or null",
  "visibleFlaws": ["string", ...],
  "aiConfidence": number (0-1)
}`

// BuildAnalysisPrompt returns the user instruction for imageCount photos.
func BuildAnalysisPrompt(imageCount int) string {
	return fmt.Sprintf(analysisPrompt, imageCount, strings.Join(Conditions, ", ")) + "\n\n" + schemaInstructions
}

func nullable(t genai.Type) *genai.Schema {
	yes := true
	return &genai.Schema{Type: t, Nullable: &yes}
}

// listingSchema mirrors schemaInstructions for providers that enforce
// structured output.
func listingSchema() *genai.Schema {
	return &genai.Schema{
		Type: genai.TypeObject,
		Properties: map[string]*genai.Schema{
			"title":       {Type: genai.TypeString},
			"description": {Type: genai.TypeString},
			"condition":   {Type: genai.TypeString, Enum: Conditions},
			"itemSpecifics": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"brand":    nullable(genai.TypeString),
					"model":    nullable(genai.TypeString),
					"size":     nullable(genai.TypeString),
					"color":    nullable(genai.TypeString),
					"material": nullable(genai.TypeString),
					"style":    nullable(genai.TypeString),
				},
			},
			"pricing": {
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"min":        {Type: genai.TypeNumber},
					"max":        {Type: genai.TypeNumber},
					"suggested":  {Type: genai.TypeNumber},
					"confidence": {Type: genai.TypeNumber},
					"currency":   {Type: genai.TypeString},
					"reasoning":  nullable(genai.TypeString),
				},
				Required: []string{"min", "max", "suggested", "confidence", "currency"},
			},
			"keywords":     {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"categoryId":   nullable(genai.TypeString),
			"visibleFlaws": {Type: genai.TypeArray, Items: &genai.Schema{Type: genai.TypeString}},
			"aiConfidence": {Type: genai.TypeNumber},
		},
		Required: []string{"title", "description", "condition", "pricing", "keywords", "visibleFlaws", "aiConfidence"},
	}
}
