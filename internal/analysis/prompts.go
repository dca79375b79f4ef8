package analysis

import "fmt"

// Prompt is what a strategy receives: a system instruction and the user turn.
type Prompt struct {
	System string
	User   string
}

const analystSystemPrompt = `You are an expert in chemical engineering experiment analysis.
You read experiment progress logs and Q&A chat logs and write a comprehensive markdown report.
Be specific: cite the steps, values and questions that appear in the data.`

const reportSkeleton = `# Experiment Analysis Report: Experiment %s

## Experiment Overview
[summary of the basic information]

## Progress Analysis
[progress summary based on the experiment logs]

## Problems and Issues
[problems found and their causes]

## Suggested Improvements
[concrete improvements]

## Conclusion and Recommendations
[final conclusion and next steps]`

const dataHeader = "=== Experiment data to analyze ==="

func agentPrompt(subjectID, context string) Prompt {
	return Prompt{
		System: analystSystemPrompt,
		User: fmt.Sprintf(`Analyze the experiment data below and write a comprehensive report.

Use the experiment_data_lookup and analyze_experiment_logs tools when you need more information about the experiment.
When you are done, reply with the finished report only.

Write the report as markdown in the following form:

%s

%s
%s
`, fmt.Sprintf(reportSkeleton, subjectID), dataHeader, context),
	}
}

func directPrompt(subjectID, context string) Prompt {
	return Prompt{
		System: analystSystemPrompt,
		User: fmt.Sprintf(`Tool call simulation: experiment_data_lookup('experiment data analysis')
Result: data lookup: experiment data analysis

Analyze the experiment logs and chat logs and write a markdown report that must include
1) a progress summary
2) problems and root-cause analysis
3) suggested improvements
4) a conclusion

%s

%s
%s

Write the comprehensive analysis report based on the data above.
`, fmt.Sprintf(reportSkeleton, subjectID), dataHeader, context),
	}
}

func parsingFallbackPrompt(subjectID, context string) Prompt {
	return Prompt{
		System: analystSystemPrompt,
		User: fmt.Sprintf(`Tool call simulation: experiment_data_lookup('comprehensive experiment data analysis')
Result: data lookup complete

Analyze the experiment logs and chat logs and write a markdown report.

%s

%s
%s

Write the comprehensive analysis report based on the data above.
`, fmt.Sprintf(reportSkeleton, subjectID), dataHeader, context),
	}
}
