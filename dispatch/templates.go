package dispatch

import (
	"path/filepath"
	"strings"
)

const htmlTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
    <meta charset="UTF-8">
    <meta name="viewport" content="width=device-width, initial-scale=1.0">
    <title>Document</title>
</head>
<body>
    <h1>Hello World</h1>
</body>
</html>`

const cssTemplate = `/* Generated CSS file */

body {
    margin: 0;
    padding: 0;
}
`

const jsTemplate = `// JavaScript file
console.log('Script loaded');
`

const genericTemplate = "// Generated file\n"

// defaultStyleBlock is the rule-based modification payload when the
// caller supplies none.
const defaultStyleBlock = `
body {
    margin: 0;
    padding: 0;
}

`

// detectFileType keys the template choice by target extension.
func detectFileType(target string) string {
	switch strings.ToLower(filepath.Ext(target)) {
	case ".html", ".htm":
		return "html"
	case ".css":
		return "css"
	case ".js":
		return "js"
	default:
		return "generic"
	}
}

func templateFor(fileType string) string {
	switch fileType {
	case "html":
		return htmlTemplate
	case "css":
		return cssTemplate
	case "js":
		return jsTemplate
	default:
		return genericTemplate
	}
}

// defaultTarget picks a conventional file name when the request names
// none, keyed by what the description asks for.
func defaultTarget(description string) string {
	lower := strings.ToLower(description)
	switch {
	case strings.Contains(lower, "css") || strings.Contains(lower, "stylesheet"):
		return "styles.css"
	case strings.Contains(lower, "javascript") || strings.Contains(lower, "js file") || strings.Contains(lower, "script"):
		return "script.js"
	case strings.Contains(lower, "html") || strings.Contains(lower, "page") || strings.Contains(lower, "homepage"):
		return "index.html"
	default:
		return "file.txt"
	}
}
