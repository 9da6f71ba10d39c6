// Package prompt holds the prompt catalog for every generation call the
// service makes. Prompts are plain string builders so tests can assert on
// the exact text sent to the model.
package prompt

import (
	"fmt"
	"strings"
)

// System is the shared system instruction for analyst-style calls.
const System = "You are a senior competitive intelligence analyst. Be factual, specific, and concise."

// CompanyAnalysis asks for a company profile as a JSON object with
// description, industry, and welcome_message fields.
func CompanyAnalysis(companyName string) string {
	return fmt.Sprintf(`Analyze the company named %q.

Identify its primary products or services, target customer segments, core value proposition, and business model. Determine its main industry and relevant sub-sectors.

Provide ONLY a single, valid JSON object with this exact structure. Double quotes for keys and string values, no trailing commas:

{
  "description": "A concise (2-3 sentences) summary of the company's business: primary offerings, target market, value proposition, and business model.",
  "industry": "The main industry and specific sub-sector(s) where the company operates.",
  "welcome_message": "A professional, engaging one-sentence welcome to %s that acknowledges their core business and expresses readiness to assist with competitive intelligence."
}

If information is scarce, provide the best analysis available, state assumptions in the description, and keep the output valid JSON.`, companyName, companyName)
}

// IdentifyCompetitors asks for the key competitors of a company as a JSON
// object with a competitors array. Description and industry give the model
// grounding context; pass "" when unknown.
func IdentifyCompetitors(companyName, description, industry string) string {
	return fmt.Sprintf(`Identify and profile the key competitors of %q.

What is known about the company:
- Description: %s
- Industry: %s

Consider direct competitors (similar products, same market), indirect competitors (different solutions for the same need), and emerging players. Focus on the most impactful, typically 5-10.

Format your response as VALID JSON ONLY, no text outside the JSON:

{
  "competitors": [
    {
      "name": "Official Competitor Name",
      "description": "1-2 sentences: core business, target market, key differentiators.",
      "strengths": ["3-5 distinct strengths"],
      "weaknesses": ["2-3 distinct weaknesses"]
    }
  ]
}

If no competitors are found, return {"competitors": []}.`,
		companyName, orUnknown(description), orUnknown(industry))
}

func orUnknown(s string) string {
	if s == "" {
		return "Unknown"
	}
	return s
}

// GenerateInsights asks for strategic insights synthesized from competitor
// profiles and news context.
func GenerateInsights(companyName, competitorsSummary, newsContext string) string {
	if newsContext == "" {
		newsContext = "No specific recent news provided."
	}
	return fmt.Sprintf(`Generate strategic insights for %q based on the competitor profiles and recent news below.

Competitor profiles:
%s

Recent news context:
%s

Evaluate market dynamics, competitive positioning, and strategic implications, always relating back to %s. Generate 3 to 7 distinct, actionable, data-driven insights. For each insight set "type" to "opportunity", "threat", or "trend", and list the competitors whose data informed it.

Output ONLY a single, valid JSON object:

{
  "insights": [
    {
      "title": "Concise, impactful title.",
      "description": "Explanation of the insight, its significance for %s, and suggested strategic considerations.",
      "type": "opportunity | threat | trend",
      "related_competitors": ["Competitor Name"]
    }
  ]
}`, companyName, competitorsSummary, newsContext, companyName, companyName)
}

// DeepResearch asks for a long-form Markdown competitive analysis report.
// companyName frames the report for the requesting company; pass "" for a
// standalone profile.
func DeepResearch(competitorName, competitorDescription, companyName string) string {
	if competitorDescription == "" {
		competitorDescription = "No initial description provided."
	}
	var b strings.Builder
	fmt.Fprintf(&b, `Create an exhaustive, data-driven competitive analysis report for %s.

Known description: %q
`, competitorName, competitorDescription)
	if companyName != "" {
		fmt.Fprintf(&b, "Analysis context: this report is for %s, focusing on their competitive positioning against %s.\n", companyName, competitorName)
	}
	b.WriteString(`Do not include a date in the report.

Use search to gather information from official company sources, reputable news outlets, industry analysis, financial data providers, and public signals such as job postings and customer reviews. Attribute every significant claim to its source with inline Markdown links.

Structure the report with Markdown headings:

1. Executive Summary
`)
	if companyName != "" {
		fmt.Fprintf(&b, "2. Strategic Implications for %s: threat level, key differentiators, exploitable vulnerabilities, opportunities\n3", companyName)
	} else {
		b.WriteString("2")
	}
	b.WriteString(`. Company Overview: business model, history, scale, reputation
Then: Products, Services & Technology; Market Position & Go-to-Market Strategy; Financials & Funding; SWOT Analysis; Recent Developments (last 6-12 months); Leadership & Organization; Future Outlook & Strategic Direction.

Maintain a professional, objective tone. Output well-formatted Markdown only.`)
	return b.String()
}

// CompetitorNews asks for recent significant news about a competitor as a
// JSON object with an articles array.
func CompetitorNews(competitorName string, daysBack int) string {
	return fmt.Sprintf(`Find and summarize significant news about %q published within the last %d days.

Prioritize official press releases, major business and technology outlets, and industry publications. Select items covering strategy shifts, product launches, funding, leadership changes, or notable market coverage. For each item explain what happened and why it matters.

Return ONLY a single, valid JSON object:

{
  "articles": [
    {
      "title": "Clear, concise headline.",
      "source": "Publication or source name.",
      "url": "Direct URL, or omit if unavailable.",
      "publishedAt": "Publication date in ISO 8601 format.",
      "content": "2-4 sentence summary with the strategic significance for %s."
    }
  ]
}

Target the 5-7 most impactful items; fewer is acceptable. If no significant news exists, return {"articles": []}.`, competitorName, daysBack, competitorName)
}

// GroundedAnswer constrains the model to the retrieved context when
// answering a question.
func GroundedAnswer(context, question string) string {
	return fmt.Sprintf(`You are an AI assistant analyzing competitive intelligence data. Answer the following question based *only* on the provided context. If the context does not contain the answer, state that clearly. Do not make up information.

Context:
%s

Question: %s

Answer:`, context, question)
}
