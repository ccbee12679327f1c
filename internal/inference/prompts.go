package inference

// documentPrompt is sent ahead of the extracted document text.
const documentPrompt = `Create a comprehensive workflow diagram that shows how the processes described below interact and flow. Only use information present in the document.

Key requirements:
1. Process identification:
   - Identify the major processes.
   - Use short technical names, lowercase with underscores (e.g. data_integration, claims_processing).
   - Give every process a 2-3 line description of what it does.
   - Classify every process as either "core" or "support".

2. Flow structure:
   - Processes may run in parallel, converge or branch.
   - Show primary and secondary workflows.
   - Include branching paths where relevant.

Return JSON in exactly this format:
{
    "nodes": [
        {"id": "process_name", "text": "Detailed description of functionality", "type": "core"}
    ],
    "edges": [
        {"from": "source_process", "to": "target_process", "label": "flow"}
    ]
}`

// imagePrompt is sent together with the normalized image.
const imagePrompt = `Analyze this image in detail and turn it into a workflow diagram.

1. Visual analysis: identify shapes, text, icons, arrows and lines, their positions, any color coding and hierarchy.
2. Workflow components: break the image into distinct steps, parallel processes, decision points, start and end points.
3. Classification: decide which components are primary ("core") and which are supporting ("support").
4. Information flow: track how information moves between components, including feedback loops.

Convert the analysis into this JSON format:
{
    "nodes": [
        {"id": "unique_process_name", "text": "What this component does and its role in the workflow", "type": "core"}
    ],
    "edges": [
        {"from": "source_process_name", "to": "target_process_name", "label": "nature of this connection"}
    ]
}

Requirements:
- Every node has a unique, descriptive id.
- Every edge references existing node ids.
- Edge labels describe the connection.
- Node types are "core" or "support".

If no specific components are identifiable, group visual elements logically by their apparent relationships.`

// documentSeparator introduces the document body after the instruction.
const documentSeparator = "\n\nDocument text:\n"
