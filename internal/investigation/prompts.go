package investigation

// Prompt templates for the planner. Verb order: query, namespace,
// learned context, then namespace three more times in the examples.

const discoveryPromptTemplate = `You are a Kubernetes expert with deep understanding of cloud-native troubleshooting.

**User Query:**
%s

**Context:**
- Namespace: %s
%s
**CRITICAL DIAGNOSTIC STRATEGY:**
When debugging issues (like "pods not running"), you MUST use a TWO-PHASE approach:

**PHASE 1 - DISCOVERY (always first):**
- List/find the problematic resources with specific selectors
- Use --field-selector, -l (labels), or -o (output format) to filter
- Examples:
  * Find non-running pods: kubectl get pods -n %s --field-selector=status.phase!=Running -o wide
  * Find failed pods: kubectl get pods -n %s --field-selector=status.phase=Failed
  * List all events: kubectl get events -n %s --sort-by=.lastTimestamp

**PHASE 2 - DETAILED DIAGNOSTICS (after discovery):**
The system will parse results and generate Phase 2 commands automatically.
**For THIS request, generate ONLY Phase 1 (discovery) commands!**

**CRITICAL RULES:**
1. NEVER use placeholders in Phase 1 commands
2. Use field-selectors, labels, output formats to find resources
3. Commands must be immediately executable without substitution
4. Maximum 3 discovery commands per request

**CRITICAL OUTPUT REQUIREMENTS:**
1. Return ONLY valid JSON - no markdown, no code blocks, no explanations
2. Use double quotes for all strings (not single quotes)
3. NO COMMENTS in JSON - JSON does not support comments!
4. Each command must be executable as-is (no placeholders)

**EXACT OUTPUT FORMAT:**
{
  "commands": [
    {
      "cmd": "kubectl get pods -n production --field-selector=status.phase!=Running -o wide",
      "reason": "Find all non-running pods with detailed status information"
    }
  ]
}

Now generate Phase 1 (discovery) commands in VALID JSON format:`

const actionPromptTemplate = `You are a Kubernetes expert executing ACTION commands.

**User Action Request:**
%s

**Context:**
- Namespace: %s
%s
**ACTION EXECUTION STRATEGY:**
The user wants to EXECUTE an action (delete, create, scale, etc.), not just investigate.
Generate commands to discover the affected resources, then execute the action.

**STEP 1 - DISCOVERY (use simple -o wide, not jsonpath):**
  * Find non-running pods: kubectl get pods -n %s --field-selector=status.phase!=Running -o wide
  * Find all pods: kubectl get pods -n %s -o wide
**STEP 2 - ACTION:**
  * Example: kubectl delete pods -n %s --field-selector=status.phase=Failed

**CRITICAL RULES:**
1. NEVER use placeholders - every command must be executable as-is
2. Prefer field selectors and label selectors over specific names
3. Maximum 3 commands per request
4. Action commands are still subject to permission policy - generate them anyway

**CRITICAL OUTPUT REQUIREMENTS:**
1. Return ONLY valid JSON - no markdown, no code blocks, no explanations
2. Use double quotes for all strings
3. NO COMMENTS in JSON

**EXACT OUTPUT FORMAT:**
{
  "commands": [
    {
      "cmd": "kubectl delete pods -n production --field-selector=status.phase=Failed",
      "reason": "Remove all failed pods as requested"
    }
  ]
}

Now generate the commands in VALID JSON format:`

const finalReportPromptTemplate = `Based on the investigation:

**Original Problem:** %s

**Root Cause Hypothesis:** %s

**Evidence:**
%s
%s
Provide:
1. Clear root cause explanation
2. Step-by-step solution
3. How to verify the fix
4. Prevention measures

Output JSON:
{
  "root_cause": "clear explanation",
  "solution": "step by step fix",
  "verification": "how to verify",
  "prevention": "how to prevent"
}`
