package lexical

// Document is the serialized editor state stored in a note's content.
type Document struct {
	Root Node `json:"root"`
}

// Node is any node of the editor tree. Only the fields that carry text
// or structure are decoded.
type Node struct {
	Type     string `json:"type"`
	Children []Node `json:"children,omitempty"`
	Text     string `json:"text,omitempty"`
	URL      string `json:"url,omitempty"`
	ListType string `json:"listType,omitempty"` // check, bullet, number
	Start    int    `json:"start,omitempty"`
	Checked  bool   `json:"checked,omitempty"`
}
