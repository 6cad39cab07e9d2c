package domain

// Template is an immutable, versioned policy template keyed by tier. Body is
// JSON with ${var} placeholders; Variables lists the placeholders the body
// uses, so callers can check inputs before rendering.
type Template struct {
	Tier      string
	Version   int
	Body      string
	Variables []string
}

// Builtins returns the stock templates for the default tiers. read-only and
// developer scope S3 access to project-prefixed buckets; admin and
// break-glass grant everything and rely on the tier boundary and duration
// ceiling instead.
func Builtins() []Template {
	return []Template{
		{
			Tier:      "read-only",
			Version:   1,
			Variables: []string{"projectId"},
			Body: `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "ProjectReadObjects",
      "Effect": "Allow",
      "Action": ["s3:GetObject", "s3:ListBucket"],
      "Resource": ["arn:aws:s3:::${projectId}-*", "arn:aws:s3:::${projectId}-*/*"]
    },
    {
      "Sid": "DescribeAndInspect",
      "Effect": "Allow",
      "Action": ["ec2:Describe*", "iam:Get*", "iam:List*"],
      "Resource": "*"
    }
  ]
}`,
		},
		{
			Tier:      "developer",
			Version:   1,
			Variables: []string{"projectId", "resourcePrefix"},
			Body: `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "ProjectBuckets",
      "Effect": "Allow",
      "Action": "s3:*",
      "Resource": ["arn:aws:s3:::${projectId}-*", "arn:aws:s3:::${projectId}-*/*", "arn:aws:s3:::${resourcePrefix}-shared/*"]
    },
    {
      "Sid": "ComputeAndPassRole",
      "Effect": "Allow",
      "Action": ["ec2:*", "lambda:*", "iam:Get*", "iam:List*", "iam:PassRole"],
      "Resource": "*"
    }
  ]
}`,
		},
		{
			Tier:      "admin",
			Version:   1,
			Variables: nil,
			Body: `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "AdminAll",
      "Effect": "Allow",
      "Action": "*",
      "Resource": "*"
    }
  ]
}`,
		},
		{
			Tier:      "break-glass",
			Version:   1,
			Variables: nil,
			Body: `{
  "Version": "2012-10-17",
  "Statement": [
    {
      "Sid": "BreakGlassAll",
      "Effect": "Allow",
      "Action": "*",
      "Resource": "*"
    }
  ]
}`,
		},
	}
}
