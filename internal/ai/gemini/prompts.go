package gemini

// estimationPrompt instructs the model to derive real-world dimensions from
// reference objects visible in the photo. The response is constrained to the
// JSON schema in the request config, so the prompt focuses on methodology.
const estimationPrompt = `Analyze this pothole image.
1. Identify a reference object (shoe, tire, road markings) to calculate scale.
2. Estimate length, width, and depth in centimeters.
3. If no reference object is found, provide a rough estimate and note that in the reasoning.`
