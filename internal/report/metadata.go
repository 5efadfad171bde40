package report

import (
	"html"
	"strings"
)

// Fixed metadata reports. These are small and shape-stable, so they are
// kept as literals rather than generated.

// ListCompanies asks for every company currently open on the Gateway.
const ListCompanies = `<?xml version="1.0" encoding="UTF-16"?>
<ENVELOPE>
    <HEADER>
        <VERSION>1</VERSION>
        <TALLYREQUEST>Export</TALLYREQUEST>
        <TYPE>Data</TYPE>
        <ID>ListOfCompanies</ID>
    </HEADER>
    <BODY>
        <DESC>
            <TDL>
                <TDLMESSAGE>
                    <REPORT NAME="ListOfCompanies">
                        <FORMS>ListOfCompanies</FORMS>
                    </REPORT>
                    <FORM NAME="ListOfCompanies">
                        <PARTS>ListOfCompanies</PARTS>
                    </FORM>
                    <PART NAME="ListOfCompanies">
                        <LINES>ListOfCompanies</LINES>
                        <REPEAT>ListOfCompanies : Company</REPEAT>
                        <SCROLLED>Vertical</SCROLLED>
                    </PART>
                    <LINE NAME="ListOfCompanies">
                        <FIELDS>FldCompanyName,FldCompanyNumber,FldBooksFrom,FldBooksTo</FIELDS>
                    </LINE>
                    <FIELD NAME="FldCompanyName">
                        <SET>$Name</SET>
                    </FIELD>
                    <FIELD NAME="FldCompanyNumber">
                        <SET>$CompanyNumber</SET>
                    </FIELD>
                    <FIELD NAME="FldBooksFrom">
                        <SET>$BooksFrom</SET>
                    </FIELD>
                    <FIELD NAME="FldBooksTo">
                        <SET>$LastVoucherDate</SET>
                    </FIELD>
                </TDLMESSAGE>
            </TDL>
        </DESC>
    </BODY>
</ENVELOPE>`

// Probe is the minimal export used by connection tests. Any response at
// all proves the Gateway is up.
const Probe = `<?xml version="1.0" encoding="UTF-16"?>
<ENVELOPE>
    <HEADER>
        <VERSION>1</VERSION>
        <TALLYREQUEST>Export</TALLYREQUEST>
        <TYPE>Data</TYPE>
        <ID>List of Companies</ID>
    </HEADER>
    <BODY>
        <DESC>
            <STATICVARIABLES>
                <SVEXPORTFORMAT>$$SysName:XML</SVEXPORTFORMAT>
            </STATICVARIABLES>
        </DESC>
    </BODY>
</ENVELOPE>`

// CompanyInfo asks for the active company's identity, book range, and
// current alter-id.
const CompanyInfo = `<?xml version="1.0" encoding="UTF-16"?>
<ENVELOPE>
    <HEADER>
        <VERSION>1</VERSION>
        <TALLYREQUEST>Export</TALLYREQUEST>
        <TYPE>Data</TYPE>
        <ID>CurrentCompanyInfo</ID>
    </HEADER>
    <BODY>
        <DESC>
            <TDL>
                <TDLMESSAGE>
                    <REPORT NAME="CurrentCompanyInfo">
                        <FORMS>CurrentCompanyInfo</FORMS>
                    </REPORT>
                    <FORM NAME="CurrentCompanyInfo">
                        <PARTS>CurrentCompanyInfo</PARTS>
                    </FORM>
                    <PART NAME="CurrentCompanyInfo">
                        <LINES>CurrentCompanyInfo</LINES>
                        <REPEAT>CurrentCompanyInfo : Company</REPEAT>
                        <SCROLLED>Vertical</SCROLLED>
                    </PART>
                    <LINE NAME="CurrentCompanyInfo">
                        <FIELDS>FldCompanyName,FldBooksFrom,FldLastVoucherDate,FldGUID,FldAlterID</FIELDS>
                    </LINE>
                    <FIELD NAME="FldCompanyName">
                        <SET>$Name</SET>
                    </FIELD>
                    <FIELD NAME="FldBooksFrom">
                        <SET>$BooksFrom</SET>
                    </FIELD>
                    <FIELD NAME="FldLastVoucherDate">
                        <SET>$LastVoucherDate</SET>
                    </FIELD>
                    <FIELD NAME="FldGUID">
                        <SET>$GUID</SET>
                    </FIELD>
                    <FIELD NAME="FldAlterID">
                        <SET>$AlterID</SET>
                    </FIELD>
                </TDLMESSAGE>
            </TDL>
        </DESC>
    </BODY>
</ENVELOPE>`

// AlterIDsFor renders the alter-id report scoped to one company. An empty
// company leaves the Gateway's active company in effect.
func AlterIDsFor(company string) string {
	if company == "" {
		return alterIDs
	}
	return strings.Replace(alterIDs,
		"<SVEXPORTFORMAT>ASCII (Comma Delimited)</SVEXPORTFORMAT>",
		"<SVEXPORTFORMAT>ASCII (Comma Delimited)</SVEXPORTFORMAT>\n                <SVCURRENTCOMPANY>"+html.EscapeString(company)+"</SVCURRENTCOMPANY>",
		1)
}

// alterIDs asks for the active company's master and transaction alter-id
// high-water marks as a single comma-delimited line.
const alterIDs = `<?xml version="1.0" encoding="UTF-16"?>
<ENVELOPE>
    <HEADER>
        <VERSION>1</VERSION>
        <TALLYREQUEST>Export</TALLYREQUEST>
        <TYPE>Data</TYPE>
        <ID>GetAlterIDs</ID>
    </HEADER>
    <BODY>
        <DESC>
            <STATICVARIABLES>
                <SVEXPORTFORMAT>ASCII (Comma Delimited)</SVEXPORTFORMAT>
            </STATICVARIABLES>
            <TDL>
                <TDLMESSAGE>
                    <REPORT NAME="GetAlterIDs">
                        <FORMS>GetAlterIDs</FORMS>
                    </REPORT>
                    <FORM NAME="GetAlterIDs">
                        <PARTS>GetAlterIDs</PARTS>
                    </FORM>
                    <PART NAME="GetAlterIDs">
                        <LINES>GetAlterIDs</LINES>
                        <REPEAT>GetAlterIDs : MyCollection</REPEAT>
                        <SCROLLED>Vertical</SCROLLED>
                    </PART>
                    <LINE NAME="GetAlterIDs">
                        <FIELDS>FldAlterMaster,FldAlterTransaction</FIELDS>
                    </LINE>
                    <FIELD NAME="FldAlterMaster">
                        <SET>$AltMstId</SET>
                    </FIELD>
                    <FIELD NAME="FldAlterTransaction">
                        <SET>$AltVchId</SET>
                    </FIELD>
                    <COLLECTION NAME="MyCollection">
                        <TYPE>Company</TYPE>
                        <FILTER>FilterActiveCompany</FILTER>
                    </COLLECTION>
                    <SYSTEM TYPE="Formulae" NAME="FilterActiveCompany">$$IsEqual:##SVCurrentCompany:$Name</SYSTEM>
                </TDLMESSAGE>
            </TDL>
        </DESC>
    </BODY>
</ENVELOPE>`
