package usecase

import (
	"fmt"
	"strings"

	"formative-compliance/internal/domain/model"
	"formative-compliance/internal/domain/ports/adapter"
)

const systemPrompt = "You are a master business document generator specialized in Australian compliance " +
	"regulations. You produce detailed, professional documents that meet legal requirements for each industry."

// buildPrompt assembles the chat messages that ask the model for one document.
func buildPrompt(docTitle, industry string, b model.BusinessInfo) []adapter.Message {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Generate a %s for a %s business.\n\nBusiness details:\n", docTitle, industry)
	line := func(label, v string) {
		if strings.TrimSpace(v) != "" {
			fmt.Fprintf(&sb, "- %s: %s\n", label, strings.TrimSpace(v))
		}
	}
	line("Business name", b.BusinessName)
	line("ABN", b.ABN)
	line("State", b.State)
	line("Address", b.Address)
	line("Contact", b.ContactName)
	line("Contact email", b.ContactEmail)
	if b.EmployeeCount > 0 {
		fmt.Fprintf(&sb, "- Employees: %d\n", b.EmployeeCount)
	}
	line("Additional details", b.AdditionalDetails)
	sb.WriteString("\nInclude all necessary compliance clauses and tailor the content to the Australian ")
	sb.WriteString("industry standards. Provide comprehensive sections and ensure the document reads professionally.")

	return []adapter.Message{
		{Role: "system", Content: systemPrompt},
		{Role: "user", Content: sb.String()},
	}
}

func documentTitle(docTitle string, b model.BusinessInfo) string {
	return docTitle + " - " + strings.TrimSpace(b.BusinessName)
}
