package retrieval

// seedDocuments is the built-in reference corpus: a few curated snippets per
// domain so planning and the SEARCH action have context before any ingestion
// has happened. IDs are stable so re-seeding overwrites instead of
// duplicating.
func seedDocuments() []*Document {
	return []*Document{
		{
			ID:      "seed-education-structure",
			Title:   "Course structure fundamentals",
			Domain:  "education",
			Source:  "seed",
			Tags:    []string{"course", "structure"},
			Content: "Effective courses open with learning objectives, sequence content from foundational to advanced, include practice after each concept, and close each module with an assessment aligned to the objectives. Target 5-8 modules with 3-5 lessons each.",
		},
		{
			ID:      "seed-education-assessment",
			Title:   "Assessment design",
			Domain:  "education",
			Source:  "seed",
			Tags:    []string{"assessment"},
			Content: "Mix formative checks (short quizzes, reflection prompts) with summative assessments (projects, graded exams). Every assessment item should trace to a stated learning objective; distractors in multiple-choice items should reflect common misconceptions.",
		},
		{
			ID:      "seed-healthcare-compliance",
			Title:   "Healthcare training compliance",
			Domain:  "healthcare",
			Source:  "seed",
			Tags:    []string{"hipaa", "compliance"},
			Content: "Clinical training content must reference current protocols, avoid patient-identifiable examples (HIPAA), and include escalation paths. Annual refresher cadence is standard; completion tracking is usually mandatory for accreditation.",
		},
		{
			ID:      "seed-finance-regulatory",
			Title:   "Financial services content constraints",
			Domain:  "finance",
			Source:  "seed",
			Tags:    []string{"regulatory"},
			Content: "Financial guidance content needs risk disclaimers, must distinguish education from advice, and should cite the governing framework (SEC, FINRA, Basel) relevant to the audience's jurisdiction. Examples should use hypothetical figures.",
		},
		{
			ID:      "seed-software-docs",
			Title:   "Technical documentation practices",
			Domain:  "software",
			Source:  "seed",
			Tags:    []string{"documentation"},
			Content: "Good technical content pairs every concept with a runnable example, states prerequisites up front, and separates tutorial (learning-oriented) from reference (information-oriented) material. Code samples should be complete enough to copy and run.",
		},
		{
			ID:      "seed-cloud-architecture",
			Title:   "Cloud architecture teaching notes",
			Domain:  "cloud",
			Source:  "seed",
			Tags:    []string{"architecture"},
			Content: "Cloud curricula should progress from managed-service basics through networking and IAM to orchestration. Hands-on labs need teardown instructions to avoid cost surprises; diagrams should show both control and data planes.",
		},
		{
			ID:      "seed-general-writing",
			Title:   "Deliverable writing guidelines",
			Domain:  "",
			Source:  "seed",
			Tags:    []string{"writing"},
			Content: "Structure long-form deliverables with a summary first, numbered sections, and a clear call to action or next steps. Keep sections balanced in length; use headings a reader can skim to reconstruct the argument.",
		},
	}
}
