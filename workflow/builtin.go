package workflow

// Built-in task types understood by the default catalog.
const (
	TaskLaunchBrowser     = "LAUNCH_BROWSER"
	TaskNavigateURL       = "NAVIGATE_URL"
	TaskPageToHTML        = "PAGE_TO_HTML"
	TaskExtractText       = "EXTRACT_TEXT_FROM_ELEMENT"
	TaskFillInput         = "FILL_INPUT"
	TaskClickElement      = "CLICK_ELEMENT"
	TaskWaitForElement    = "WAIT_FOR_ELEMENT"
	TaskDeliverViaWebhook = "DELIVER_VIA_WEBHOOK"
	TaskExtractWithAI     = "EXTRACT_DATA_WITH_AI"
	TaskReadPropertyJSON  = "READ_PROPERTY_FROM_JSON"
	TaskAddPropertyJSON   = "ADD_PROPERTY_TO_JSON"
)

// DefaultCatalog returns the catalog of built-in browser and data tasks.
func DefaultCatalog() *MapCatalog {
	browser := Param{Name: "Web page", Kind: ParamBrowser, Required: true}
	return NewCatalog(
		TaskDefinition{
			Type:             TaskLaunchBrowser,
			Inputs:           []Param{{Name: "Website Url", Kind: ParamString, Required: true}},
			Outputs:          []Param{{Name: "Web page", Kind: ParamBrowser}},
			Credits:          5,
			Resource:         ResourceBrowser,
			EntryPoint:       true,
			NetworkSensitive: true,
		},
		TaskDefinition{
			Type:             TaskNavigateURL,
			Inputs:           []Param{browser, {Name: "URL", Kind: ParamString, Required: true}},
			Outputs:          []Param{{Name: "Web page", Kind: ParamBrowser}},
			Credits:          2,
			Resource:         ResourcePage,
			NetworkSensitive: true,
		},
		TaskDefinition{
			Type:     TaskPageToHTML,
			Inputs:   []Param{browser},
			Outputs:  []Param{{Name: "Html", Kind: ParamString}, {Name: "Web page", Kind: ParamBrowser}},
			Credits:  2,
			Resource: ResourcePage,
		},
		TaskDefinition{
			Type:    TaskExtractText,
			Inputs:  []Param{{Name: "Html", Kind: ParamString, Required: true}, {Name: "Selector", Kind: ParamString, Required: true}},
			Outputs: []Param{{Name: "Extracted text", Kind: ParamString}},
			Credits: 2,
		},
		TaskDefinition{
			Type:     TaskFillInput,
			Inputs:   []Param{browser, {Name: "Selector", Kind: ParamString, Required: true}, {Name: "Value", Kind: ParamString, Required: true}},
			Outputs:  []Param{{Name: "Web page", Kind: ParamBrowser}},
			Credits:  1,
			Resource: ResourcePage,
		},
		TaskDefinition{
			Type:     TaskClickElement,
			Inputs:   []Param{browser, {Name: "Selector", Kind: ParamString, Required: true}},
			Outputs:  []Param{{Name: "Web page", Kind: ParamBrowser}},
			Credits:  1,
			Resource: ResourcePage,
		},
		TaskDefinition{
			Type:     TaskWaitForElement,
			Inputs:   []Param{browser, {Name: "Selector", Kind: ParamString, Required: true}, {Name: "Visibility", Kind: ParamString, Required: true}},
			Outputs:  []Param{{Name: "Web page", Kind: ParamBrowser}},
			Credits:  1,
			Resource: ResourcePage,
		},
		TaskDefinition{
			Type:             TaskDeliverViaWebhook,
			Inputs:           []Param{{Name: "Target URL", Kind: ParamString, Required: true}, {Name: "Body", Kind: ParamString, Required: true}},
			Credits:          1,
			NetworkSensitive: true,
		},
		TaskDefinition{
			Type:    TaskExtractWithAI,
			Inputs:  []Param{{Name: "Content", Kind: ParamString, Required: true}, {Name: "Credentials", Kind: ParamCredential, Required: true}, {Name: "Prompt", Kind: ParamString, Required: true}},
			Outputs: []Param{{Name: "Extracted data", Kind: ParamString}},
			Credits: 4,
		},
		TaskDefinition{
			Type:    TaskReadPropertyJSON,
			Inputs:  []Param{{Name: "JSON", Kind: ParamString, Required: true}, {Name: "Property name", Kind: ParamString, Required: true}},
			Outputs: []Param{{Name: "Property value", Kind: ParamString}},
			Credits: 1,
		},
		TaskDefinition{
			Type:    TaskAddPropertyJSON,
			Inputs:  []Param{{Name: "JSON", Kind: ParamString, Required: true}, {Name: "Property name", Kind: ParamString, Required: true}, {Name: "Property value", Kind: ParamString, Required: true}},
			Outputs: []Param{{Name: "Updated JSON", Kind: ParamString}},
			Credits: 1,
		},
	)
}
